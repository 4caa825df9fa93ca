// Package dispatch fans a DropPlan out to workers and collects one terminal
// WorkerTask per mission.
//
// Every mission runs concurrently (bounded by MaxParallel) with its own
// wall-clock timeout and token ceiling. A failing, slow or panicking worker
// never cancels its siblings. Transient failures (timeout, transport) are
// retried once after a backoff; anything that is still failing becomes a
// terminal failed task. Worker errors never escape the dispatcher: Dispatch
// only fails for an invalid plan or a cancelled parent context.
package dispatch
