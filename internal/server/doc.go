// Package server hosts the two service surfaces: a websocket ingest
// server that carries PCM audio in and transcript events out, and an HTTP
// API for health, configuration, statistics and Prometheus metrics.
package server
