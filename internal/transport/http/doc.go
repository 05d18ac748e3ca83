// Package http serves the read-only status endpoints of a pipeline run.
//
// A long run over many orders (geocoding in particular) can take hours, so
// the CLI can expose a small chi server next to it:
//
//	GET /healthz  liveness, always 200 while the process is up
//	GET /status   JSON snapshot of the tracked run and its steps
//	GET /metrics  Prometheus exposition of the pipeline meters
//
// Handlers only read state; nothing here can start or alter a run.
package http
