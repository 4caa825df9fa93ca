// Package planner turns a StrategicBrief into a DropPlan.
//
// Complexity is scored from the distinct angles named in the brief: one angle
// (or none) yields one mission, each additional angle adds a mission, capped at
// MaxWorkers. Angles over the cap are recorded as deferred. Every mission
// carries a self-contained briefing rendered from the brief, so a worker can
// execute it without the conversation. A brief with too many unknown fields is
// rejected with a core.PlanningError carrying clarifying questions.
package planner
