// Package service applies sequenced requests to the sequencer state.
//
// Engine is the deterministic core: one request in, one response out.
// Service wraps it in the single-writer loop that numbers each request,
// logs it to the input log, applies it, stores the response in the
// output log and checkpoints the state whenever the input log rolls to a
// new segment. Recover rebuilds an Engine from the newest checkpoint and
// the input log before Service starts taking traffic.
package service
