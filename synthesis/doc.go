// Package synthesis merges a drop's findings into the session's living
// document.
//
// The living document is an append-only claim log with a materialized current
// view. New claims are compared with the active and contested claims on the
// same topic: a stronger new claim invalidates the old one (text kept, linked
// to its successor), a claim that cannot be ranked against its rival leaves
// both contested for human resolution. Apply is a pure function of its
// inputs: it never fails, never reads the clock, and gives the same document
// regardless of the order in which workers completed.
package synthesis
