// Package analyst critiques the raw findings of a drop.
//
// Research workers tend to agree with the question they are given. An
// Analyst reads what they reported, not the synthesized document, and lists
// weak evidence, unstated assumptions and the questions the drop left open,
// ranked against the strategic brief. Its output is advisory and is stored
// next to the drop as analysis.json.
//
// Heuristic is deterministic and works from sources, confidence and failures
// alone. Model asks a language model for the same structure and falls back to
// Heuristic when the reply cannot be parsed.
package analyst
