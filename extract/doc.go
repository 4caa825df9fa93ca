// Package extract turns a research conversation into a core.StrategicBrief.
//
// Two extractors are provided. Heuristic is deterministic and rule based: it
// scans the user's sentences for intent, constraint, success, decision and
// hypothesis cues and never guesses; fields it cannot establish stay
// core.Unknown. Model asks a language model for the same structure and falls
// back to Heuristic when the reply cannot be parsed.
//
// Extraction has no side effects. Its only failure mode is an insufficient
// conversation, reported through Result.Questions rather than an error.
package extract
