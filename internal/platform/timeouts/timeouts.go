// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// UpstreamRequest caps a single outbound call to the profile API,
// per attempt and not per retry sequence.
const UpstreamRequest = 15 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second

// Persist caps one save or restore round trip against local storage.
const Persist = 3 * time.Second
