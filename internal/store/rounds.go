package store

import (
	"fmt"

	"github.com/roach88/captable/internal/model"
)

// AddRound appends r and returns its index. Instruments are normalized and
// checked as in AddInstrument.
func (s *Store) AddRound(r model.Round) (int, error) {
	r, err := s.prepareRound(r)
	if err != nil {
		return 0, err
	}
	s.doc.Rounds = append(s.doc.Rounds, r)
	s.invalidateIf(r.Instruments...)
	return len(s.doc.Rounds) - 1, nil
}

// UpdateRound replaces round i with r. If the calculation type changes the
// instruments of r are dropped, and valuation fields are cleared when the new
// type does not use them.
func (s *Store) UpdateRound(i int, r model.Round) error {
	if err := s.checkRound(i); err != nil {
		return err
	}
	old := s.doc.Rounds[i]
	if r.CalculationType != old.CalculationType {
		target := r.CalculationType
		r.CalculationType = old.CalculationType
		r = r.ChangeCalculationType(target)
	}
	r, err := s.prepareRound(r)
	if err != nil {
		return err
	}
	s.doc.Rounds[i] = r
	s.invalidateIf(old.Instruments...)
	s.invalidateIf(r.Instruments...)
	return nil
}

// DeleteRound removes round i and returns it.
func (s *Store) DeleteRound(i int) (model.Round, error) {
	if err := s.checkRound(i); err != nil {
		return model.Round{}, err
	}
	removed := s.doc.Rounds[i]
	// Later grants move down one round.
	for _, r := range s.doc.Rounds[i:] {
		s.invalidateIf(r.Instruments...)
	}
	s.doc.Rounds = append(s.doc.Rounds[:i:i], s.doc.Rounds[i+1:]...)
	return removed, nil
}

// ReplaceRounds atomically replaces every round. Either all rounds pass the
// instrument checks and are stored, or the store is unchanged.
func (s *Store) ReplaceRounds(rounds []model.Round) error {
	prepared := make([]model.Round, len(rounds))
	for i, r := range rounds {
		p, err := s.prepareRound(r)
		if err != nil {
			return fmt.Errorf("rounds[%d]: %w", i, err)
		}
		prepared[i] = p
	}
	s.doc.Rounds = prepared
	s.index.Invalidate()
	return nil
}

// AddInstrument appends inst to round ri and returns its index.
func (s *Store) AddInstrument(ri int, inst model.Instrument) (int, error) {
	if err := s.checkRound(ri); err != nil {
		return 0, err
	}
	inst = inst.Normalize()
	round := &s.doc.Rounds[ri]
	if err := s.checkInstrument(*round, -1, inst); err != nil {
		return 0, err
	}
	round.Instruments = append(round.Instruments, inst)
	s.invalidateIf(inst)
	return len(round.Instruments) - 1, nil
}

// UpdateInstrument replaces instrument ii of round ri.
func (s *Store) UpdateInstrument(ri, ii int, inst model.Instrument) error {
	if err := s.checkInstrumentIndex(ri, ii); err != nil {
		return err
	}
	inst = inst.Normalize()
	round := &s.doc.Rounds[ri]
	if err := s.checkInstrument(*round, ii, inst); err != nil {
		return err
	}
	old := round.Instruments[ii]
	round.Instruments[ii] = inst
	s.invalidateIf(old, inst)
	return nil
}

// DeleteInstrument removes instrument ii of round ri and returns it.
func (s *Store) DeleteInstrument(ri, ii int) (model.Instrument, error) {
	if err := s.checkInstrumentIndex(ri, ii); err != nil {
		return model.Instrument{}, err
	}
	round := &s.doc.Rounds[ri]
	removed := round.Instruments[ii]
	// Later grants in the round shift down one position.
	s.invalidateIf(round.Instruments[ii:]...)
	insts := make([]model.Instrument, 0, len(round.Instruments)-1)
	insts = append(insts, round.Instruments[:ii]...)
	round.Instruments = append(insts, round.Instruments[ii+1:]...)
	return removed, nil
}

// prepareRound normalizes r's instruments and checks each against the
// others.
func (s *Store) prepareRound(r model.Round) (model.Round, error) {
	r = r.Clone()
	if r.Instruments == nil {
		r.Instruments = []model.Instrument{}
	}
	for i := range r.Instruments {
		r.Instruments[i] = r.Instruments[i].Normalize()
	}
	for i, inst := range r.Instruments {
		if err := s.checkInstrument(r, i, inst); err != nil {
			return model.Round{}, fmt.Errorf("instruments[%d]: %w", i, err)
		}
	}
	return r, nil
}

// checkInstrument verifies inst may be stored at position idx of round
// (idx < 0 for an appended instrument).
func (s *Store) checkInstrument(round model.Round, idx int, inst model.Instrument) error {
	if inst.Terms == nil {
		return fmt.Errorf("%w: instrument has no terms", ErrKindMismatch)
	}
	if inst.HolderName != "" && !s.hasHolder(inst.HolderName) {
		return fmt.Errorf("%w: %q", ErrUnknownHolder, inst.HolderName)
	}
	if inst.IsOrdinary() && round.CalculationType.Valid() && inst.Kind() != round.CalculationType.Kind() {
		return fmt.Errorf("%w: %s in %s round", ErrKindMismatch, inst.Kind(), round.CalculationType)
	}
	if inst.IsAllocation() {
		if other, ok := round.AllocationIndex(inst.HolderName); ok && other != idx {
			return fmt.Errorf("%w: %q", ErrDuplicateAllocation, inst.HolderName)
		}
	}
	return nil
}
