package snapshot

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
)

var (
	ErrNotFound = errors.New("snapshot: no checkpoint")
	// ErrCycleMismatch means a checkpoint's content disagrees with the
	// cycle it is stored under. Recovering from it would replay the wrong
	// segments.
	ErrCycleMismatch = errors.New("snapshot: checkpoint cycle mismatch")
)

const keyPrefix = "checkpoint/"

// Store keeps checkpoints in pebble keyed by cycle.
type Store struct {
	db *pebble.DB
}

func OpenStore(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "open checkpoint store %s", dir)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Save(c Checkpoint) error {
	return errors.Wrapf(s.db.Set(keyFor(c.Cycle), Encode(c), pebble.Sync), "save checkpoint %d", c.Cycle)
}

func (s *Store) Has(cycle int) (bool, error) {
	_, closer, err := s.db.Get(keyFor(cycle))
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "lookup checkpoint %d", cycle)
	}
	_ = closer.Close()
	return true, nil
}

func (s *Store) Load(cycle int) (Checkpoint, error) {
	val, closer, err := s.db.Get(keyFor(cycle))
	if errors.Is(err, pebble.ErrNotFound) {
		return Checkpoint{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint{}, errors.Wrapf(err, "load checkpoint %d", cycle)
	}
	defer closer.Close()
	return decodeAt(cycle, val)
}

// Latest loads the checkpoint with the highest cycle.
func (s *Store) Latest() (Checkpoint, error) {
	iter, err := s.newIter()
	if err != nil {
		return Checkpoint{}, err
	}
	defer iter.Close()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return Checkpoint{}, errors.Wrap(err, "seek latest checkpoint")
		}
		return Checkpoint{}, ErrNotFound
	}
	cycle, err := parseKey(iter.Key())
	if err != nil {
		return Checkpoint{}, err
	}
	return decodeAt(cycle, iter.Value())
}

// PruneBefore drops checkpoints older than cycle.
func (s *Store) PruneBefore(cycle int) error {
	return errors.Wrap(s.db.DeleteRange([]byte(keyPrefix), keyFor(cycle), pebble.Sync), "prune checkpoints")
}

func (s *Store) newIter() (*pebble.Iterator, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix + "~"),
	})
	return iter, errors.Wrap(err, "checkpoint iterator")
}

func decodeAt(cycle int, b []byte) (Checkpoint, error) {
	c, err := Decode(b)
	if err != nil {
		return Checkpoint{}, errors.Wrapf(err, "checkpoint %d", cycle)
	}
	if c.Cycle != cycle {
		return Checkpoint{}, errors.Wrapf(ErrCycleMismatch, "stored under %d, holds %d", cycle, c.Cycle)
	}
	return c, nil
}

func keyFor(cycle int) []byte {
	return []byte(fmt.Sprintf("%s%020d", keyPrefix, cycle))
}

func parseKey(b []byte) (int, error) {
	cycle, err := strconv.Atoi(string(bytes.TrimPrefix(b, []byte(keyPrefix))))
	return cycle, errors.Wrapf(err, "parse checkpoint key %q", b)
}
