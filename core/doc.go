// Package core provides the foundational domain types, interfaces and error
// taxonomy shared by every gtm-factory component. It defines the core
// abstractions for:
//
//   - Conversations and the StrategicBrief distilled from them
//   - DropPlans, WorkerMissions and the Worker contract that executes them
//   - WorkerTasks, Findings and DropSummaries (one planning + execution cycle)
//   - The LivingDocument (append-only claim log with a materialized view)
//   - MetadataRecords used for cross-session discovery
//   - Pluggable stores for session state, artifacts and the discovery catalog
//
// The package intentionally keeps implementation concerns (persistence,
// planning policy, dispatch, synthesis) out of scope, exposing small
// interfaces so backends and workers can be swapped without touching callers.
package core
