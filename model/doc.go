// Package model defines the provider-agnostic abstraction workers and
// extractors use to drive language models.
//
// A Request carries a system prompt, the turns and a token ceiling; JSON asks
// the provider for a single JSON object reply. Turns normalizes a transcript
// for providers that require alternating roles. Provider failures worth a
// retry (network errors, 429, 5xx) are marked with core.ErrTransport by
// TransportError so the dispatcher can tell them from fatal ones.
//
// Providers live in model/anthropic and model/openai. MockModel serves tests,
// examples and the offline "mock" provider.
package model
