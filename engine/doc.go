// Package engine runs the human-in-the-loop research workflow.
//
// A session moves through explicit states:
//
//	awaiting_clarification -> plan_proposed -> plan_approved -> executing -> synthesis_complete
//
// and may be closed from any state except executing. The Engine wires the
// context extractor, task planner, dispatcher, synthesis engine and metadata
// indexer around a SessionStore, which is the only shared mutable resource.
// Operations on one session are serialized; different sessions proceed in
// parallel.
//
// A drop that crashed mid-execution (plan persisted, no summary) is returned
// to plan_approved by Recover and can be executed again. The re-run keeps
// every task result that was already persisted and dispatches only the
// missions without one; synthesis is idempotent, so it never duplicates
// claims. Abandon closes such a drop as all-failed instead.
//
// Before a drop's summary is written, an analyst.Analyst critiques the raw
// task results. The analysis is stored next to the drop and named by the
// summary; it never changes the living document.
package engine
