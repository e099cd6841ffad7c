package compute

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// JSONFloat is a float64 whose JSON form keeps NaN and ±Inf. Finite values
// encode as numbers; the others as the strings "NaN", "+Inf" and "-Inf".
type JSONFloat float64

// MarshalJSON implements json.Marshaler.
func (f JSONFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte(strconv.Quote(strconv.FormatFloat(v, 'g', -1, 64))), nil
	}
	return json.Marshal(v)
}

// UnmarshalJSON accepts a number or one of the strings MarshalJSON writes.
func (f *JSONFloat) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("compute: bad float %q", s)
		}
		*f = JSONFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = JSONFloat(v)
	return nil
}

type indicesJSON struct {
	IE  *JSONFloat `json:"ie"`
	ISE *JSONFloat `json:"ise"`
	IAE *JSONFloat `json:"iae"`
}

// MarshalJSON writes absent indices as null and non-finite ones as strings.
func (in Indices) MarshalJSON() ([]byte, error) {
	return json.Marshal(indicesJSON{
		IE:  (*JSONFloat)(in.IE),
		ISE: (*JSONFloat)(in.ISE),
		IAE: (*JSONFloat)(in.IAE),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (in *Indices) UnmarshalJSON(b []byte) error {
	var j indicesJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	*in = Indices{IE: (*float64)(j.IE), ISE: (*float64)(j.ISE), IAE: (*float64)(j.IAE)}
	return nil
}

type statsJSON struct {
	Max  JSONFloat `json:"max"`
	Min  JSONFloat `json:"min"`
	Mean JSONFloat `json:"mean"`
	Std  JSONFloat `json:"std"`
}

// MarshalJSON implements json.Marshaler.
func (s Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(statsJSON{
		Max:  JSONFloat(s.Max),
		Min:  JSONFloat(s.Min),
		Mean: JSONFloat(s.Mean),
		Std:  JSONFloat(s.Std),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Stats) UnmarshalJSON(b []byte) error {
	var j statsJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	*s = Stats{Max: float64(j.Max), Min: float64(j.Min), Mean: float64(j.Mean), Std: float64(j.Std)}
	return nil
}

type loopJSON struct {
	Indices   Indices   `json:"indices"`
	Stats     Stats     `json:"stats"`
	LastError JSONFloat `json:"last_error"`
	Samples   int       `json:"samples"`
}

// MarshalJSON implements json.Marshaler.
func (l LoopResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(loopJSON{
		Indices:   l.Indices,
		Stats:     l.Stats,
		LastError: JSONFloat(l.LastError),
		Samples:   l.Samples,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *LoopResult) UnmarshalJSON(b []byte) error {
	var j loopJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	*l = LoopResult{Indices: j.Indices, Stats: j.Stats, LastError: float64(j.LastError), Samples: j.Samples}
	return nil
}
