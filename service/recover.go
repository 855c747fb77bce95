package service

import (
	"log/slog"

	"github.com/cockroachdb/errors"

	"sequencer/domain/ledger"
	"sequencer/infra/wal/entry"
	"sequencer/infra/wal/exit"
	"sequencer/protocol"
	"sequencer/snapshot"
)

// ErrReplayDiverged means replay produced a response different from the
// one already in the output log for the same sequence number.
var ErrReplayDiverged = errors.New("replayed response differs from output log")

type RecoveryConfig struct {
	InputDir string
	// Strict makes a replay divergence fatal instead of a warning.
	Strict bool
	Log    *slog.Logger
}

// Recover rebuilds the state: the newest checkpoint, then every request
// in the input log from that checkpoint's cycle on. Responses missing
// from the output log are written; the ones present are checked against
// the replay. It returns the engine and the last sequence number in use.
func Recover(cfg RecoveryConfig, output *exit.Log, checkpoints CheckpointStore, opts ...EngineOption) (*Engine, uint64, error) {
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("component", "checkpoint")

	e := NewEngine(ledger.New(), opts...)
	cycle := 0
	c, err := checkpoints.Latest()
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		log.Info("no checkpoint, replaying full input log")
	case err != nil:
		return nil, 0, errors.Wrap(err, "load checkpoint")
	default:
		state, err := ledger.Restore(c.State, e.MarketOptions()...)
		if err != nil {
			return nil, 0, errors.Wrapf(err, "restore checkpoint %d", c.Cycle)
		}
		e.state = state
		cycle = c.Cycle
		log.Info("checkpoint loaded", "cycle", cycle, "markets", len(c.State.Markets))
	}

	replayed, diverged := 0, 0
	lastSeq, err := entry.ReplayFrom(cfg.InputDir, cycle, func(rec *entry.Record) error {
		req, err := protocol.DecodeRequest(rec.Data)
		if err != nil {
			log.Warn("undecodable request in input log", "seq", rec.Seq, "err", err)
		}
		resp := e.Process(rec.Seq, rec.CreatedAt(), req)
		replayed++

		stored, err := output.Get(rec.Seq)
		if errors.Is(err, exit.ErrNotFound) {
			payload, err := protocol.EncodeResponse(resp)
			if err != nil {
				return err
			}
			return output.PutNew(rec.Seq, payload)
		}
		if err != nil {
			return err
		}

		same, err := sameAsStored(resp, stored.Payload)
		if err != nil {
			return errors.Wrapf(err, "compare response %d", rec.Seq)
		}
		if !same {
			diverged++
			if cfg.Strict {
				return errors.Wrapf(ErrReplayDiverged, "seq %d", rec.Seq)
			}
			log.Warn("replayed response differs from output log", "seq", rec.Seq, "guid", req.Guid)
		}
		return nil
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "replay input log")
	}

	outputLast, err := output.LastSequence()
	if err != nil {
		return nil, 0, err
	}
	log.Info("replay complete", "from_cycle", cycle, "requests", replayed, "diverged", diverged, "last_seq", max(lastSeq, outputLast))
	return e, max(lastSeq, outputLast), nil
}

func sameAsStored(resp *protocol.Response, payload []byte) (bool, error) {
	stored, err := protocol.DecodeResponse(payload)
	if err != nil {
		return false, err
	}
	return protocol.SameOutcome(resp, stored)
}
