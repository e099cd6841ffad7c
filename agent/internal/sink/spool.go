package sink

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/obsidianstack/ctrlperf/agent/internal/influx"
)

// spoolPrefix namespaces batch keys. A key is the prefix followed by the
// big-endian spool time in nanoseconds and a big-endian sequence number, so
// iteration order is insertion order.
var spoolPrefix = []byte("batch/")

// Batch is one spooled write.
type Batch struct {
	Key    []byte
	Points []influx.Point
}

// Spool persists batches the store rejected so they can be replayed once it
// is reachable again. Values are zstd-compressed JSON of spooledPoint.
type Spool struct {
	db  *badger.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
	seq atomic.Uint64
}

// OpenSpool opens (or creates) a spool under path. level selects the zstd
// encoder: 1 fastest, 2 default, 3 better, 4 best.
func OpenSpool(path string, level int) (*Spool, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("spool: open %s: %w", path, err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encoderLevel(level)))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("spool: create encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("spool: create decoder: %w", err)
	}

	return &Spool{db: db, enc: enc, dec: dec}, nil
}

func encoderLevel(level int) zstd.EncoderLevel {
	switch level {
	case 1:
		return zstd.SpeedFastest
	case 3:
		return zstd.SpeedBetterCompression
	case 4:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

// spooledPoint is the stored form of an influx.Point. Float fields are kept
// as strconv text so NaN and ±Inf survive the round trip, and are kept apart
// from string fields so each is written back with its original type.
type spooledPoint struct {
	Measurement string            `json:"m"`
	Tags        map[string]string `json:"t,omitempty"`
	Floats      map[string]string `json:"f,omitempty"`
	Strings     map[string]string `json:"s,omitempty"`
	Time        int64             `json:"ts"` // unix nanoseconds
}

func toSpooled(points []influx.Point) ([]spooledPoint, error) {
	out := make([]spooledPoint, len(points))
	for i, p := range points {
		sp := spooledPoint{Measurement: p.Measurement, Tags: p.Tags, Time: p.Time.UnixNano()}
		for k, v := range p.Fields {
			switch v := v.(type) {
			case float64:
				if sp.Floats == nil {
					sp.Floats = make(map[string]string)
				}
				sp.Floats[k] = strconv.FormatFloat(v, 'g', -1, 64)
			case string:
				if sp.Strings == nil {
					sp.Strings = make(map[string]string)
				}
				sp.Strings[k] = v
			default:
				return nil, fmt.Errorf("point %s: field %q has unsupported type %T", p.Measurement, k, v)
			}
		}
		out[i] = sp
	}
	return out, nil
}

func fromSpooled(sps []spooledPoint) ([]influx.Point, error) {
	out := make([]influx.Point, len(sps))
	for i, sp := range sps {
		fields := make(map[string]any, len(sp.Floats)+len(sp.Strings))
		for k, txt := range sp.Floats {
			v, err := strconv.ParseFloat(txt, 64)
			if err != nil {
				return nil, fmt.Errorf("point %s: field %q: %w", sp.Measurement, k, err)
			}
			fields[k] = v
		}
		for k, v := range sp.Strings {
			fields[k] = v
		}
		out[i] = influx.Point{
			Measurement: sp.Measurement,
			Tags:        sp.Tags,
			Fields:      fields,
			Time:        time.Unix(0, sp.Time).UTC(),
		}
	}
	return out, nil
}

// Put stores points as one batch.
func (s *Spool) Put(points []influx.Point) error {
	sps, err := toSpooled(points)
	if err != nil {
		return fmt.Errorf("spool: %w", err)
	}
	raw, err := json.Marshal(sps)
	if err != nil {
		return fmt.Errorf("spool: marshal: %w", err)
	}
	val := s.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	key := s.nextKey()

	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	}); err != nil {
		return fmt.Errorf("spool: put: %w", err)
	}
	return nil
}

func (s *Spool) nextKey() []byte {
	key := make([]byte, len(spoolPrefix)+16)
	n := copy(key, spoolPrefix)
	binary.BigEndian.PutUint64(key[n:], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint64(key[n+8:], s.seq.Add(1))
	return key
}

// Pending returns up to limit batches, oldest first. A non-positive limit
// returns all of them. Entries that cannot be decoded are removed.
func (s *Spool) Pending(limit int) ([]Batch, error) {
	var (
		out     []Batch
		corrupt [][]byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(spoolPrefix); it.ValidForPrefix(spoolPrefix); it.Next() {
			if limit > 0 && len(out) >= limit {
				break
			}
			item := it.Item()
			key := item.KeyCopy(nil)
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			pts, err := s.decode(val)
			if err != nil {
				zap.L().Warn("spool: dropping undecodable batch", zap.Binary("key", key), zap.Error(err))
				corrupt = append(corrupt, key)
				continue
			}
			out = append(out, Batch{Key: key, Points: pts})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("spool: read: %w", err)
	}

	for _, k := range corrupt {
		if err := s.Delete(k); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (s *Spool) decode(val []byte) ([]influx.Point, error) {
	raw, err := s.dec.DecodeAll(val, nil)
	if err != nil {
		return nil, err
	}
	var sps []spooledPoint
	if err := json.Unmarshal(raw, &sps); err != nil {
		return nil, err
	}
	return fromSpooled(sps)
}

// Delete removes the batch stored under key.
func (s *Spool) Delete(key []byte) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}); err != nil {
		return fmt.Errorf("spool: delete: %w", err)
	}
	return nil
}

// Len returns the number of spooled batches.
func (s *Spool) Len() (int, error) {
	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(spoolPrefix); it.ValidForPrefix(spoolPrefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("spool: count: %w", err)
	}
	return n, nil
}

// Close flushes and closes the underlying database.
func (s *Spool) Close() error {
	s.dec.Close()
	s.enc.Close()
	return s.db.Close()
}
