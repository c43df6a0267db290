// Package worker runs one download request from start to finish.
//
// Worker.Run gathers the request from the controller, discovers the item
// list with metadata-only probes, then downloads and publishes every item in
// order. A Session carries the mutable state of one run: the engine options
// (including credentials obtained from the controller), the authentication
// machine, and the metadata record expected from the engine after each
// download. Engine callbacks are delivered to the Session on the worker's
// goroutine.
//
// Failures are tiered. Skipped and item-fatal failures are logged and the
// loop moves on to the next item; worker-fatal failures end Run.
package worker
