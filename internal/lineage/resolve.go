package lineage

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/roach88/captable/internal/model"
)

var (
	// ErrOriginOutOfRange indicates an origin round or instrument index that
	// does not address an instrument.
	ErrOriginOutOfRange = errors.New("lineage: origin out of range")

	// ErrNotGrant indicates an edited origin that is not an ordinary
	// instrument.
	ErrNotGrant = errors.New("lineage: origin is not an ordinary instrument")

	// ErrRoundOutOfRange indicates a round index outside the document.
	ErrRoundOutOfRange = errors.New("lineage: round out of range")

	// ErrNoAllocation indicates the holder has no allocation in the round.
	ErrNoAllocation = errors.New("lineage: no allocation for holder")
)

// Location addresses an instrument within a sequence of rounds.
type Location struct {
	Round      int `json:"round"`
	Instrument int `json:"instrument"`
}

// String renders the location as a field path.
func (l Location) String() string {
	return fmt.Sprintf("rounds[%d].instruments[%d]", l.Round, l.Instrument)
}

// Origin is the ordinary instrument that granted a pro-rata right.
type Origin struct {
	Location
	Grantor model.Instrument
}

// Grant returns the grant carried by the origin instrument.
func (o Origin) Grant() model.Grant {
	g, _ := o.Grantor.Grant()
	return g
}

// Right is the latest pro-rata right held by a holder before some round.
type Right struct {
	HolderName string              `json:"holder_name"`
	Type       model.ProRataType   `json:"type"`
	ClassName  string              `json:"class_name"`
	Percentage decimal.NullDecimal `json:"percentage"`
	Origin     Location            `json:"origin"`
}

// FindOriginGrant returns the most recent grant of pro-rata rights to holder
// in rounds [0, upto). Rounds are scanned in descending order and, within a
// round, instruments are scanned from last to first, so the latest grant
// governs.
func FindOriginGrant(rounds []model.Round, upto int, holder string) (Origin, bool) {
	if upto > len(rounds) {
		upto = len(rounds)
	}
	for r := upto - 1; r >= 0; r-- {
		insts := rounds[r].Instruments
		for i := len(insts) - 1; i >= 0; i-- {
			inst := insts[i]
			if inst.HasRights() && model.SameHolder(inst.HolderName, holder) {
				return Origin{Location: Location{Round: r, Instrument: i}, Grantor: inst}, true
			}
		}
	}
	return Origin{}, false
}

// CollectRightsHolders returns the latest right of every holder granted in
// rounds [0, upto). Later grants replace earlier ones; the result keeps the
// order in which holders first received a right.
func CollectRightsHolders(rounds []model.Round, upto int) []Right {
	if upto > len(rounds) {
		upto = len(rounds)
	}
	var out []Right
	pos := make(map[string]int)
	for r := 0; r < upto; r++ {
		for i, inst := range rounds[r].Instruments {
			if !inst.HasRights() {
				continue
			}
			g, _ := inst.Grant()
			right := Right{
				HolderName: inst.HolderName,
				Type:       g.ProRataRights,
				ClassName:  inst.ClassName,
				Percentage: projectPercentage(g),
				Origin:     Location{Round: r, Instrument: i},
			}
			key := holderKey(inst.HolderName)
			if p, ok := pos[key]; ok {
				out[p] = right
				continue
			}
			pos[key] = len(out)
			out = append(out, right)
		}
	}
	return out
}

// ToggleExercise removes holder's allocation from round if it has one, or
// appends a full exercise of the given right otherwise. Toggling twice on a
// round without an allocation restores its instrument list.
func ToggleExercise(round model.Round, holder string, t model.ProRataType, class string, percentage decimal.NullDecimal) model.Round {
	out := round.Clone()
	if idx, ok := out.AllocationIndex(holder); ok {
		out.Instruments = removeAt(out.Instruments, idx)
		return out
	}
	out.Instruments = append(out.Instruments, model.NewAllocation(holder, class, t, percentage))
	return out
}

// PropagateGrantEdit stores edited at the origin location and reprojects
// the holder's allocation in current from it. Exercise parameters already
// chosen on the allocation are preserved. If edited no longer grants a
// right, the dependent allocation is removed.
//
// The returned rounds and current round must be persisted together.
func PropagateGrantEdit(rounds []model.Round, originRound, originInstrument int, edited model.Instrument, current model.Round) ([]model.Round, model.Round, error) {
	if originRound < 0 || originRound >= len(rounds) ||
		originInstrument < 0 || originInstrument >= len(rounds[originRound].Instruments) {
		return nil, model.Round{}, fmt.Errorf("%w: round %d instrument %d", ErrOriginOutOfRange, originRound, originInstrument)
	}
	if !edited.IsOrdinary() {
		return nil, model.Round{}, ErrNotGrant
	}

	edited = edited.Normalize()
	out := cloneRounds(rounds)
	out[originRound].Instruments[originInstrument] = edited

	return out, Reproject(current, edited), nil
}

// Reproject updates the allocation in round belonging to grant's holder so
// that its terms match grant. Rounds without such an allocation are returned
// unchanged.
func Reproject(round model.Round, grant model.Instrument) model.Round {
	out := round.Clone()
	idx, ok := out.AllocationIndex(grant.HolderName)
	if !ok {
		return out
	}
	g, _ := grant.Grant()
	if !g.HasRights() {
		out.Instruments = removeAt(out.Instruments, idx)
		return out
	}
	alloc, _ := out.Instruments[idx].Allocation()
	alloc.ProRataType = g.ProRataRights
	alloc.ProRataPercentage = projectPercentage(g)
	out.Instruments[idx] = out.Instruments[idx].WithAllocation(alloc)
	return out
}

// RemoveAllocation drops holder's allocation from round. It is used when
// the grant an allocation exercised is gone and no earlier grant remains.
func RemoveAllocation(round model.Round, holder string) model.Round {
	out := round.Clone()
	if idx, ok := out.AllocationIndex(holder); ok {
		out.Instruments = removeAt(out.Instruments, idx)
	}
	return out
}

// ExerciseParams are the holder-chosen parameters of an allocation.
type ExerciseParams struct {
	ExerciseType              model.ExerciseType
	PartialExerciseAmount     decimal.NullDecimal
	PartialExercisePercentage decimal.NullDecimal
}

// Resolution describes how an allocation edit was resolved.
type Resolution struct {
	Origin   Origin
	Degraded bool // no origin grant was found; params applied directly
}

// EditAllocation applies params to holder's allocation in
// rounds[roundIndex]. When the governing grant is found the allocation's
// terms are reprojected from it. When no grant exists the edit still
// succeeds on the allocation's own fields and the resolution is marked
// degraded.
func EditAllocation(rounds []model.Round, roundIndex int, holder string, params ExerciseParams) (model.Round, Resolution, error) {
	if roundIndex < 0 || roundIndex >= len(rounds) {
		return model.Round{}, Resolution{}, fmt.Errorf("%w: %d", ErrRoundOutOfRange, roundIndex)
	}
	out := rounds[roundIndex].Clone()
	idx, ok := out.AllocationIndex(holder)
	if !ok {
		return model.Round{}, Resolution{}, fmt.Errorf("%w: %q in round %d", ErrNoAllocation, holder, roundIndex)
	}

	alloc, _ := out.Instruments[idx].Allocation()
	alloc.ExerciseType = params.ExerciseType
	alloc.PartialExerciseAmount = params.PartialExerciseAmount
	alloc.PartialExercisePercentage = params.PartialExercisePercentage
	if params.ExerciseType == model.ExerciseFull {
		alloc.PartialExerciseAmount = decimal.NullDecimal{}
		alloc.PartialExercisePercentage = decimal.NullDecimal{}
	}

	var res Resolution
	if origin, found := FindOriginGrant(rounds, roundIndex, holder); found {
		res.Origin = origin
		g := origin.Grant()
		alloc.ProRataType = g.ProRataRights
		alloc.ProRataPercentage = projectPercentage(g)
	} else {
		res.Degraded = true
	}
	out.Instruments[idx] = out.Instruments[idx].WithAllocation(alloc)
	return out, res, nil
}

// projectPercentage is the percentage an allocation caches from g: only
// super rights carry one.
func projectPercentage(g model.Grant) decimal.NullDecimal {
	if g.ProRataRights != model.ProRataSuper {
		return decimal.NullDecimal{}
	}
	return g.ProRataPercentage
}

func removeAt(insts []model.Instrument, idx int) []model.Instrument {
	out := make([]model.Instrument, 0, len(insts)-1)
	out = append(out, insts[:idx]...)
	return append(out, insts[idx+1:]...)
}

func cloneRounds(rounds []model.Round) []model.Round {
	out := make([]model.Round, len(rounds))
	for i, r := range rounds {
		out[i] = r.Clone()
	}
	return out
}
