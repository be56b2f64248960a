package lineage

import (
	"fmt"

	"github.com/roach88/captable/internal/model"
)

// IssueKind classifies a lineage inconsistency.
type IssueKind string

const (
	// IssueMissingOrigin is an allocation with no grant in an earlier round.
	IssueMissingOrigin IssueKind = "missing_origin"
	// IssueTermsDiverge is an allocation whose cached terms differ from the
	// governing grant.
	IssueTermsDiverge IssueKind = "terms_diverge"
	// IssueAdvisoryAmount is a partial exercise whose amount does not bind
	// because a percentage is also set.
	IssueAdvisoryAmount IssueKind = "advisory_amount"
)

// Issue is a non-fatal lineage finding.
type Issue struct {
	Kind       IssueKind `json:"kind"`
	Location   Location  `json:"location"`
	HolderName string    `json:"holder_name"`
	Message    string    `json:"message"`
}

// Audit inspects every allocation in rounds. Issues never block editing:
// allocations without an origin stay editable through EditAllocation.
func Audit(rounds []model.Round) []Issue {
	var issues []Issue
	for r, round := range rounds {
		for i, inst := range round.Instruments {
			alloc, ok := inst.Allocation()
			if !ok {
				continue
			}
			loc := Location{Round: r, Instrument: i}

			origin, found := FindOriginGrant(rounds, r, inst.HolderName)
			if !found {
				issues = append(issues, Issue{
					Kind:       IssueMissingOrigin,
					Location:   loc,
					HolderName: inst.HolderName,
					Message:    fmt.Sprintf("no pro-rata right granted to %q before round %q", inst.HolderName, round.Name),
				})
			} else if g := origin.Grant(); !sameTerms(alloc, g) {
				issues = append(issues, Issue{
					Kind:       IssueTermsDiverge,
					Location:   loc,
					HolderName: inst.HolderName,
					Message: fmt.Sprintf("allocation terms %s differ from grant %s at %s",
						describe(alloc.ProRataType, alloc.ProRataPercentage.Decimal.String(), alloc.ProRataPercentage.Valid),
						describe(g.ProRataRights, g.ProRataPercentage.Decimal.String(), g.ProRataRights == model.ProRataSuper),
						origin.Location),
				})
			}

			if alloc.AdvisoryAmount() {
				issues = append(issues, Issue{
					Kind:       IssueAdvisoryAmount,
					Location:   loc,
					HolderName: inst.HolderName,
					Message:    "partial_exercise_percentage binds; partial_exercise_amount is advisory",
				})
			}
		}
	}
	return issues
}

func sameTerms(a model.Allocation, g model.Grant) bool {
	if a.ProRataType != g.ProRataRights {
		return false
	}
	want := projectPercentage(g)
	if a.ProRataType != model.ProRataSuper {
		return true
	}
	if a.ProRataPercentage.Valid != want.Valid {
		return false
	}
	return !want.Valid || a.ProRataPercentage.Decimal.Equal(want.Decimal)
}

func describe(t model.ProRataType, pct string, withPct bool) string {
	if withPct {
		return fmt.Sprintf("%s@%s", t, pct)
	}
	return string(t)
}
