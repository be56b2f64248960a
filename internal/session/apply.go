package session

import (
	"fmt"

	"github.com/roach88/captable/internal/lineage"
	"github.com/roach88/captable/internal/model"
)

// AddHolder adds a holder.
func (s *Session) AddHolder(h model.Holder) (Outcome, error) {
	if err := s.store.AddHolder(h); err != nil {
		return Outcome{}, err
	}
	return s.finish("add_holder", nil, nil), nil
}

// UpdateHolder replaces a holder, cascading a rename.
func (s *Session) UpdateHolder(name string, h model.Holder) (Outcome, error) {
	if err := s.store.UpdateHolder(name, h); err != nil {
		return Outcome{}, err
	}
	return s.finish("update_holder", allRounds(s.store.RoundCount()), nil), nil
}

// RenameHolder renames a holder across every round.
func (s *Session) RenameHolder(oldName, newName string) (Outcome, error) {
	if _, err := s.store.RenameHolder(oldName, newName); err != nil {
		return Outcome{}, err
	}
	return s.finish("rename_holder", allRounds(s.store.RoundCount()), nil), nil
}

// DeleteHolder removes an unreferenced holder.
func (s *Session) DeleteHolder(name string) (Outcome, error) {
	if err := s.store.DeleteHolder(name); err != nil {
		return Outcome{}, err
	}
	return s.finish("delete_holder", nil, nil), nil
}

// RenameGroup renames a holder group.
func (s *Session) RenameGroup(oldName, newName string) (Outcome, error) {
	if _, err := s.store.RenameGroup(oldName, newName); err != nil {
		return Outcome{}, err
	}
	return s.finish("rename_group", nil, nil), nil
}

// Groups returns the holder groups in use.
func (s *Session) Groups() []string {
	return s.store.Groups()
}

// AddRound appends a round.
func (s *Session) AddRound(r model.Round) (Outcome, error) {
	ri, err := s.store.AddRound(r)
	if err != nil {
		return Outcome{}, err
	}
	return s.finish("add_round", []int{ri}, nil), nil
}

// UpdateRound replaces round ri. Allocations in later rounds are reprojected
// when the change moved their governing grant.
func (s *Session) UpdateRound(ri int, r model.Round) (Outcome, error) {
	if err := s.store.UpdateRound(ri, r); err != nil {
		return Outcome{}, err
	}
	propagated, touched, err := s.reconcile(ri)
	if err != nil {
		return Outcome{}, err
	}
	return s.finish("update_round", append([]int{ri}, touched...), propagated), nil
}

// DeleteRound removes round ri.
func (s *Session) DeleteRound(ri int) (Outcome, error) {
	if _, err := s.store.DeleteRound(ri); err != nil {
		return Outcome{}, err
	}
	propagated, _, err := s.reconcile(ri - 1)
	if err != nil {
		return Outcome{}, err
	}
	s.revalidateAll()
	return s.finish("delete_round", allRounds(s.store.RoundCount()), propagated), nil
}

// AddInstrument appends inst to round ri. A new grant may govern
// allocations in later rounds; their terms are reprojected.
func (s *Session) AddInstrument(ri int, inst model.Instrument) (Outcome, error) {
	if _, err := s.store.AddInstrument(ri, inst); err != nil {
		return Outcome{}, err
	}
	var propagated []lineage.Location
	touched := []int{ri}
	if inst.HasRights() {
		p, t, err := s.reconcile(ri)
		if err != nil {
			return Outcome{}, err
		}
		propagated, touched = p, append(touched, t...)
	}
	return s.finish("add_instrument", touched, propagated), nil
}

// UpdateInstrument replaces instrument ii of round ri. Changes to a grant's
// pro-rata fields go through EditGrant.
func (s *Session) UpdateInstrument(ri, ii int, inst model.Instrument) (Outcome, error) {
	old, err := s.store.Instrument(ri, ii)
	if err != nil {
		return Outcome{}, err
	}
	if old.IsOrdinary() && inst.IsOrdinary() && grantChanged(old, inst.Normalize()) {
		return s.EditGrant(ri, ii, inst)
	}
	if err := s.store.UpdateInstrument(ri, ii, inst); err != nil {
		return Outcome{}, err
	}
	return s.finish("update_instrument", []int{ri}, nil), nil
}

// DeleteInstrument removes instrument ii of round ri. Removing a grant
// reprojects the allocations it governed from the next most recent grant,
// if any.
func (s *Session) DeleteInstrument(ri, ii int) (Outcome, error) {
	removed, err := s.store.DeleteInstrument(ri, ii)
	if err != nil {
		return Outcome{}, err
	}
	var propagated []lineage.Location
	touched := []int{ri}
	if removed.HasRights() {
		p, t, err := s.reconcile(ri)
		if err != nil {
			return Outcome{}, err
		}
		propagated, touched = p, append(touched, t...)
	}
	return s.finish("delete_instrument", touched, propagated), nil
}

// EditGrant replaces the ordinary instrument at (ri, ii) and reprojects
// every later allocation whose governing grant is this instrument, before
// or after the edit. Exercise parameters on those allocations are
// preserved. An allocation that loses its grant, because the right was
// cleared or moved to another holder, falls back to the next most recent
// grant of its holder, or is removed when there is none. All rounds are
// replaced in one store operation.
func (s *Session) EditGrant(ri, ii int, inst model.Instrument) (Outcome, error) {
	before := s.store.Rounds()
	if ri < 0 || ri >= len(before) || ii < 0 || ii >= len(before[ri].Instruments) {
		return Outcome{}, fmt.Errorf("%w: round %d instrument %d", lineage.ErrOriginOutOfRange, ri, ii)
	}
	edited := inst.Normalize()
	here := lineage.Location{Round: ri, Instrument: ii}

	// The edit itself is stored even when no later round depends on it.
	out, _, err := lineage.PropagateGrantEdit(before, ri, ii, edited, before[ri])
	if err != nil {
		return Outcome{}, err
	}

	holders := []string{before[ri].Instruments[ii].HolderName}
	if !model.SameHolder(holders[0], edited.HolderName) {
		holders = append(holders, edited.HolderName)
	}

	var propagated []lineage.Location
	touched := []int{ri}
	for j := ri + 1; j < len(out); j++ {
		current := out[j]
		for _, holder := range holders {
			idx, ok := before[j].AllocationIndex(holder)
			if !ok {
				continue
			}
			prev, hadPrev := lineage.FindOriginGrant(before, j, holder)
			next, hasNext := lineage.FindOriginGrant(out, j, holder)
			if !(hadPrev && prev.Location == here) && !(hasNext && next.Location == here) {
				continue
			}

			var updated model.Round
			if hasNext {
				updated = lineage.Reproject(current, next.Grantor)
			} else {
				updated = lineage.RemoveAllocation(current, holder)
			}
			if instrumentsEqual(current.Instruments, updated.Instruments) {
				continue
			}
			current = updated
			propagated = append(propagated, lineage.Location{Round: j, Instrument: idx})
		}
		if !instrumentsEqual(out[j].Instruments, current.Instruments) {
			out[j] = current
			touched = append(touched, j)
		}
	}

	if err := s.store.ReplaceRounds(out); err != nil {
		return Outcome{}, err
	}
	return s.finish("edit_grant", touched, propagated), nil
}

// ToggleExercise exercises holder's latest right in round ri, or removes
// the holder's allocation when one exists.
func (s *Session) ToggleExercise(ri int, holder string) (Outcome, error) {
	round, err := s.store.Round(ri)
	if err != nil {
		return Outcome{}, err
	}
	var right lineage.Right
	if _, exercised := round.AllocationIndex(holder); !exercised {
		found := false
		for _, r := range s.Rights(ri) {
			if model.SameHolder(r.HolderName, holder) {
				right, found = r, true
				break
			}
		}
		if !found {
			return Outcome{}, fmt.Errorf("%w: %q in round %d", ErrNoRight, holder, ri)
		}
		holder = right.HolderName
	}

	toggled := lineage.ToggleExercise(round, holder, right.Type, right.ClassName, right.Percentage)
	if err := s.store.UpdateRound(ri, toggled); err != nil {
		return Outcome{}, err
	}
	return s.finish("toggle_exercise", []int{ri}, nil), nil
}

// EditAllocation changes the exercise parameters of holder's allocation in
// round ri. Without a resolvable origin grant the edit is applied directly
// and the outcome's resolution is marked degraded.
func (s *Session) EditAllocation(ri int, holder string, params lineage.ExerciseParams) (Outcome, error) {
	round, res, err := lineage.EditAllocation(s.store.Rounds(), ri, holder, params)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.store.UpdateRound(ri, round); err != nil {
		return Outcome{}, err
	}
	if res.Degraded {
		s.log.Warn().Str("holder", holder).Int("round", ri).Msg("allocation edited without an origin grant")
	}
	out := s.finish("edit_allocation", []int{ri}, nil)
	out.Resolution = &res
	return out, nil
}

// reconcile reprojects every allocation in rounds after ri whose terms
// differ from its governing grant. Allocations without a grant are left for
// Audit to report.
func (s *Session) reconcile(ri int) ([]lineage.Location, []int, error) {
	rounds := s.store.Rounds()
	var propagated []lineage.Location
	var touched []int
	changed := false
	for j := ri + 1; j < len(rounds); j++ {
		for _, idx := range rounds[j].Allocations() {
			holder := rounds[j].Instruments[idx].HolderName
			origin, ok := s.store.Origin(j, holder)
			if !ok {
				continue
			}
			updated := lineage.Reproject(rounds[j], origin.Grantor)
			if instrumentsEqual(rounds[j].Instruments, updated.Instruments) {
				continue
			}
			rounds[j] = updated
			propagated = append(propagated, lineage.Location{Round: j, Instrument: idx})
			touched = append(touched, j)
			changed = true
		}
	}
	if !changed {
		return nil, nil, nil
	}
	if err := s.store.ReplaceRounds(rounds); err != nil {
		return nil, nil, err
	}
	return propagated, touched, nil
}

func grantChanged(old, updated model.Instrument) bool {
	a, _ := old.Grant()
	b, _ := updated.Grant()
	if a.ProRataRights != b.ProRataRights || a.DilutionMethod != b.DilutionMethod ||
		a.ProRataPercentage.Valid != b.ProRataPercentage.Valid {
		return true
	}
	if a.ProRataPercentage.Valid && !a.ProRataPercentage.Decimal.Equal(b.ProRataPercentage.Decimal) {
		return true
	}
	return !model.SameHolder(old.HolderName, updated.HolderName) && (a.HasRights() || b.HasRights())
}

func instrumentsEqual(a, b []model.Instrument) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
