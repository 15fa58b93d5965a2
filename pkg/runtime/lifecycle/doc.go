// Package lifecycle starts the process servers and tears everything down in a
// fixed order on shutdown.
//
// Shutdown order:
//
//  1. admin API (no new status checks)
//  2. RPC server, gracefully, bounded by the shutdown timeout
//  3. runtime environment: drain the admission gate, close export sessions,
//     close the engine
//  4. metrics server, last, so the teardown itself is still observable
package lifecycle
