package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/captable/internal/model"
	"github.com/roach88/captable/internal/session"
)

// AssertionError describes a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %s failed: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// EvaluateAssertions checks every assertion against the session's final
// state and returns one message per failure.
func EvaluateAssertions(s *session.Session, assertions []Assertion) []string {
	doc := s.Snapshot()
	var failures []string
	for i, a := range assertions {
		if err := evaluate(s, doc, a); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}

func evaluate(s *session.Session, doc model.Document, a Assertion) error {
	if needsRound(a.Type) && (a.Round < 0 || a.Round >= len(doc.Rounds)) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("round %d", a.Round), Actual: fmt.Sprintf("%d rounds", len(doc.Rounds))}
	}

	switch a.Type {
	case AssertInstrument:
		insts := doc.Rounds[a.Round].Instruments
		if *a.Instrument < 0 || *a.Instrument >= len(insts) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("instrument %d", *a.Instrument), Actual: fmt.Sprintf("%d instruments", len(insts))}
		}
		return matchFields(a.Type, insts[*a.Instrument], a.Expect)

	case AssertAllocation:
		round := doc.Rounds[a.Round]
		idx, ok := round.AllocationIndex(a.Holder)
		if a.Absent {
			if ok {
				return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("no allocation for %q", a.Holder), Actual: fmt.Sprintf("allocation at instruments[%d]", idx)}
			}
			return nil
		}
		if !ok {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("allocation for %q", a.Holder), Actual: "none"}
		}
		return matchFields(a.Type, round.Instruments[idx], a.Expect)

	case AssertInstrumentCount:
		if got := len(doc.Rounds[a.Round].Instruments); got != *a.Count {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(*a.Count), Actual: fmt.Sprint(got)}
		}

	case AssertRoundErrors:
		got := codes(s.Errors(a.Round))
		if !equalStrings(a.Codes, got) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(a.Codes), Actual: fmt.Sprint(got)}
		}

	case AssertAudit:
		got := make([]string, 0)
		for _, issue := range s.Audit() {
			got = append(got, string(issue.Kind))
		}
		if strings.Join(got, ",") != strings.Join(a.Kinds, ",") {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(a.Kinds), Actual: fmt.Sprint(got)}
		}

	case AssertHolders:
		got := make([]string, 0, len(doc.Holders))
		for _, h := range doc.Holders {
			got = append(got, h.Name)
		}
		if strings.Join(got, "\x00") != strings.Join(a.Names, "\x00") {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(a.Names), Actual: fmt.Sprint(got)}
		}

	case AssertDocumentValid:
		if errs := s.DocumentErrors(); len(errs) > 0 {
			return &AssertionError{Type: a.Type, Expected: "no document errors", Actual: errs[0].Error()}
		}
	}
	return nil
}

func needsRound(t string) bool {
	switch t {
	case AssertInstrument, AssertAllocation, AssertInstrumentCount, AssertRoundErrors:
		return true
	}
	return false
}

// matchFields compares expected flat keys against the instrument's JSON
// encoding (subset semantics). A nil expected value requires the key to be
// absent. Numbers compare by value, so 0.2 matches 0.20.
func matchFields(kind string, inst model.Instrument, expect map[string]any) error {
	raw, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	var actual map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&actual); err != nil {
		return err
	}

	keys := make([]string, 0, len(expect))
	for k := range expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := expect[key]
		got, present := actual[key]
		switch {
		case want == nil && present:
			return &AssertionError{Type: kind, Expected: key + " absent", Actual: fmt.Sprintf("%s=%v", key, got)}
		case want == nil:
		case !present:
			return &AssertionError{Type: kind, Expected: fmt.Sprintf("%s=%v", key, want), Actual: key + " absent"}
		case !sameValue(got, want):
			return &AssertionError{Type: kind, Expected: fmt.Sprintf("%s=%v", key, want), Actual: fmt.Sprintf("%s=%v", key, got)}
		}
	}
	return nil
}

func sameValue(got, want any) bool {
	if n, ok := got.(json.Number); ok {
		a, errA := decimal.NewFromString(n.String())
		b, errB := decimal.NewFromString(fmt.Sprint(want))
		return errA == nil && errB == nil && a.Equal(b)
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}
