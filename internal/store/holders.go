package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/captable/internal/model"
)

// AddHolder appends h.
func (s *Store) AddHolder(h model.Holder) error {
	if strings.TrimSpace(h.Name) == "" {
		return ErrEmptyHolderName
	}
	if s.hasHolder(h.Name) {
		return fmt.Errorf("%w: %q", ErrDuplicateHolder, h.Name)
	}
	s.doc.Holders = append(s.doc.Holders, h)
	return nil
}

// UpdateHolder replaces the holder named name with h. A changed name is
// cascaded to every instrument as in RenameHolder.
func (s *Store) UpdateHolder(name string, h model.Holder) error {
	idx, ok := s.doc.HolderIndex(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrHolderNotFound, name)
	}
	if !model.SameHolder(name, h.Name) {
		if _, err := s.RenameHolder(name, h.Name); err != nil {
			return err
		}
	}
	s.doc.Holders[idx] = h
	return nil
}

// RenameHolder renames a holder and every instrument that references it
// across all rounds. Instruments are updated in place, keeping their
// positions and lineage. It returns the number of instruments updated.
func (s *Store) RenameHolder(oldName, newName string) (int, error) {
	idx, ok := s.doc.HolderIndex(oldName)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrHolderNotFound, oldName)
	}
	if strings.TrimSpace(newName) == "" {
		return 0, ErrEmptyHolderName
	}
	if other, exists := s.doc.HolderIndex(newName); exists && other != idx {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateHolder, newName)
	}

	s.doc.Holders[idx].Name = newName
	updated := 0
	for r := range s.doc.Rounds {
		insts := s.doc.Rounds[r].Instruments
		for i := range insts {
			if model.SameHolder(insts[i].HolderName, oldName) {
				insts[i].HolderName = newName
				s.invalidateIf(insts[i])
				updated++
			}
		}
	}
	return updated, nil
}

// DeleteHolder removes a holder no instrument references.
func (s *Store) DeleteHolder(name string) error {
	idx, ok := s.doc.HolderIndex(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrHolderNotFound, name)
	}
	for r, round := range s.doc.Rounds {
		for i, inst := range round.Instruments {
			if model.SameHolder(inst.HolderName, name) {
				return fmt.Errorf("%w: %q at rounds[%d].instruments[%d]", ErrHolderInUse, name, r, i)
			}
		}
	}
	s.doc.Holders = append(s.doc.Holders[:idx:idx], s.doc.Holders[idx+1:]...)
	return nil
}

// Groups returns the distinct non-empty group names, sorted.
func (s *Store) Groups() []string {
	seen := make(map[string]bool)
	var out []string
	for _, h := range s.doc.Holders {
		if h.Group != "" && !seen[h.Group] {
			seen[h.Group] = true
			out = append(out, h.Group)
		}
	}
	sort.Strings(out)
	return out
}

// RenameGroup moves every holder in group oldName to newName and returns
// the number of holders updated.
func (s *Store) RenameGroup(oldName, newName string) (int, error) {
	updated := 0
	for i := range s.doc.Holders {
		if s.doc.Holders[i].Group == oldName && oldName != "" {
			s.doc.Holders[i].Group = newName
			updated++
		}
	}
	if updated == 0 {
		return 0, fmt.Errorf("%w: %q", ErrGroupNotFound, oldName)
	}
	return updated, nil
}
