package lineage

import (
	"slices"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/captable/internal/model"
)

// GrantIndex maps each holder to the locations of the instruments granting
// them pro-rata rights, in ascending (round, instrument) order.
//
// The index answers the same question as FindOriginGrant without a scan.
// Owners must call Invalidate on every mutation touching a rights-bearing
// field and Rebuild before the next lookup; Current checks the index
// against a fresh scan.
type GrantIndex struct {
	byHolder map[string][]Location
	valid    bool
}

// BuildGrantIndex scans rounds and returns a valid index.
func BuildGrantIndex(rounds []model.Round) *GrantIndex {
	ix := &GrantIndex{}
	ix.Rebuild(rounds)
	return ix
}

// Rebuild replaces the index contents with a fresh scan of rounds.
func (ix *GrantIndex) Rebuild(rounds []model.Round) {
	ix.byHolder = make(map[string][]Location)
	for r, round := range rounds {
		for i, inst := range round.Instruments {
			if inst.HasRights() {
				key := holderKey(inst.HolderName)
				ix.byHolder[key] = append(ix.byHolder[key], Location{Round: r, Instrument: i})
			}
		}
	}
	ix.valid = true
}

// Invalidate marks the index stale.
func (ix *GrantIndex) Invalidate() {
	ix.valid = false
}

// Valid reports whether the index has been rebuilt since the last
// invalidation.
func (ix *GrantIndex) Valid() bool {
	return ix.valid
}

// Latest returns the location of the most recent grant to holder in a round
// strictly before upto. A stale index answers false.
func (ix *GrantIndex) Latest(holder string, upto int) (Location, bool) {
	if !ix.valid {
		return Location{}, false
	}
	locs := ix.byHolder[holderKey(holder)]
	for i := len(locs) - 1; i >= 0; i-- {
		if locs[i].Round < upto {
			return locs[i], true
		}
	}
	return Location{}, false
}

// Holders returns the number of holders with at least one grant.
func (ix *GrantIndex) Holders() int {
	return len(ix.byHolder)
}

// Current reports whether the index is valid and equal to a fresh scan of
// rounds.
func (ix *GrantIndex) Current(rounds []model.Round) bool {
	if !ix.valid {
		return false
	}
	fresh := BuildGrantIndex(rounds)
	if len(fresh.byHolder) != len(ix.byHolder) {
		return false
	}
	for k, locs := range fresh.byHolder {
		if !slices.Equal(locs, ix.byHolder[k]) {
			return false
		}
	}
	return true
}

func holderKey(name string) string {
	return norm.NFC.String(name)
}
