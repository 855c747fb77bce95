// Package snapshot persists checkpoints of the sequencer state.
//
// A checkpoint is written under the input log cycle it was taken at: it
// holds everything applied from segments below that cycle, so recovery
// loads the newest checkpoint and replays segments from its cycle on.
// The encoding is protobuf wire format built with protowire, amounts as
// decimal strings.
package snapshot
