package store

import (
	"errors"
	"fmt"

	"github.com/roach88/captable/internal/lineage"
	"github.com/roach88/captable/internal/model"
)

// Errors returned by store operations.
var (
	ErrDuplicateHolder     = errors.New("store: duplicate holder")
	ErrEmptyHolderName     = errors.New("store: holder name is empty")
	ErrHolderNotFound      = errors.New("store: holder not found")
	ErrHolderInUse         = errors.New("store: holder is referenced by instruments")
	ErrGroupNotFound       = errors.New("store: group not found")
	ErrRoundNotFound       = errors.New("store: round not found")
	ErrInstrumentNotFound  = errors.New("store: instrument not found")
	ErrUnknownHolder       = errors.New("store: instrument references unknown holder")
	ErrDuplicateAllocation = errors.New("store: holder already has an allocation in round")
	ErrKindMismatch        = errors.New("store: instrument kind does not fit round")
)

// Store is the in-memory aggregate of holders and rounds.
type Store struct {
	doc   model.Document
	index *lineage.GrantIndex
}

// New creates a store holding a deep copy of doc. An empty schema version is
// set to model.SchemaVersion. doc is not checked; callers load documents
// through package document, which validates structure.
func New(doc model.Document) *Store {
	d := doc.Clone()
	if d.SchemaVersion == "" {
		d.SchemaVersion = model.SchemaVersion
	}
	return &Store{doc: d, index: lineage.BuildGrantIndex(d.Rounds)}
}

// Snapshot returns a deep copy of the aggregate.
func (s *Store) Snapshot() model.Document {
	return s.doc.Clone()
}

// Holders returns a copy of the holder list.
func (s *Store) Holders() []model.Holder {
	return append([]model.Holder{}, s.doc.Holders...)
}

// Rounds returns a deep copy of the rounds.
func (s *Store) Rounds() []model.Round {
	return s.Snapshot().Rounds
}

// RoundCount returns the number of rounds.
func (s *Store) RoundCount() int {
	return len(s.doc.Rounds)
}

// Round returns a copy of round i.
func (s *Store) Round(i int) (model.Round, error) {
	if err := s.checkRound(i); err != nil {
		return model.Round{}, err
	}
	return s.doc.Rounds[i].Clone(), nil
}

// Instrument returns instrument ii of round ri.
func (s *Store) Instrument(ri, ii int) (model.Instrument, error) {
	if err := s.checkInstrumentIndex(ri, ii); err != nil {
		return model.Instrument{}, err
	}
	return s.doc.Rounds[ri].Instruments[ii], nil
}

// Grants returns the grant index, rebuilding it first if a mutation made it
// stale. The returned index must not be retained across mutations.
func (s *Store) Grants() *lineage.GrantIndex {
	if !s.index.Valid() {
		s.index.Rebuild(s.doc.Rounds)
	}
	return s.index
}

// Origin returns the governing grant for holder before round upto, using the
// grant index.
func (s *Store) Origin(upto int, holder string) (lineage.Origin, bool) {
	loc, ok := s.Grants().Latest(holder, upto)
	if !ok {
		return lineage.Origin{}, false
	}
	return lineage.Origin{Location: loc, Grantor: s.doc.Rounds[loc.Round].Instruments[loc.Instrument]}, true
}

func (s *Store) checkRound(i int) error {
	if i < 0 || i >= len(s.doc.Rounds) {
		return fmt.Errorf("%w: index %d", ErrRoundNotFound, i)
	}
	return nil
}

func (s *Store) checkInstrumentIndex(ri, ii int) error {
	if err := s.checkRound(ri); err != nil {
		return err
	}
	if ii < 0 || ii >= len(s.doc.Rounds[ri].Instruments) {
		return fmt.Errorf("%w: round %d index %d", ErrInstrumentNotFound, ri, ii)
	}
	return nil
}

func (s *Store) hasHolder(name string) bool {
	_, ok := s.doc.HolderIndex(name)
	return ok
}

// invalidateIf marks the grant index stale when any of the instruments
// carries a right.
func (s *Store) invalidateIf(insts ...model.Instrument) {
	for _, inst := range insts {
		if inst.HasRights() {
			s.index.Invalidate()
			return
		}
	}
}
