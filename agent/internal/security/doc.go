// Package security checks the TLS certificate of the InfluxDB endpoint.
// The result is surfaced on /api/v1/health so an expiring store certificate
// shows up before writes start failing.
package security
