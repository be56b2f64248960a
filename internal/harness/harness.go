package harness

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/roach88/captable/internal/document"
	"github.com/roach88/captable/internal/lineage"
	"github.com/roach88/captable/internal/model"
	"github.com/roach88/captable/internal/session"
	"github.com/roach88/captable/internal/testutil"
	"github.com/roach88/captable/internal/validate"
)

// Harness applies scenario steps to a session with a deterministic
// revision clock.
type Harness struct {
	session *session.Session
}

// Run executes a scenario against a fresh session over its document.
// Step and assertion failures are reported in the result; the returned
// error is reserved for scenarios that cannot run at all.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, zerolog.Nop())
}

// RunWithLogger is Run with session logs sent to log.
func RunWithLogger(scenario *Scenario, log zerolog.Logger) (*Result, error) {
	doc, err := document.Load(scenario.Document)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	h := &Harness{
		session: session.New(doc, session.WithClock(testutil.NewDeterministicClock()), session.WithLogger(log)),
	}

	result := NewResult()
	for i, step := range scenario.Flow {
		h.executeStep(i, step, result)
	}
	result.Document = h.session.Snapshot()

	for _, msg := range EvaluateAssertions(h.session, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(index int, step FlowStep, result *Result) {
	event := TraceEvent{Op: step.Op, Args: stepArgs(step)}
	out, err := h.apply(step)
	if err != nil {
		event.Failure = err.Error()
	} else {
		event.Seq = out.Revision
		event.Propagated = locationStrings(out.Propagated)
		event.Codes = outcomeCodes(out.Errors)
		if out.Resolution != nil {
			event.Degraded = out.Resolution.Degraded
		}
	}
	result.Trace = append(result.Trace, event)

	prefix := fmt.Sprintf("flow[%d] %s", index, step.Op)
	exp := step.Expect
	switch {
	case err != nil && (exp == nil || exp.Error == ""):
		result.AddError(fmt.Sprintf("%s: unexpected error: %v", prefix, err))
		return
	case err != nil && !strings.Contains(err.Error(), exp.Error):
		result.AddError(fmt.Sprintf("%s: error %q does not mention %q", prefix, err, exp.Error))
		return
	case err != nil:
		return
	case exp != nil && exp.Error != "":
		result.AddError(fmt.Sprintf("%s: expected error mentioning %q, got success", prefix, exp.Error))
		return
	case exp == nil:
		return
	}

	if exp.Propagated != nil && !equalStrings(exp.Propagated, event.Propagated) {
		result.AddError(fmt.Sprintf("%s: propagated %v, want %v", prefix, event.Propagated, exp.Propagated))
	}
	if exp.Degraded != nil && *exp.Degraded != event.Degraded {
		result.AddError(fmt.Sprintf("%s: degraded %v, want %v", prefix, event.Degraded, *exp.Degraded))
	}
	for ri, want := range exp.Codes {
		got, ok := event.Codes[strconv.Itoa(ri)]
		if !ok {
			result.AddError(fmt.Sprintf("%s: round %d was not revalidated", prefix, ri))
			continue
		}
		if !equalStrings(want, got) {
			result.AddError(fmt.Sprintf("%s: round %d codes %v, want %v", prefix, ri, got, want))
		}
	}
}

func (h *Harness) apply(step FlowStep) (session.Outcome, error) {
	s := h.session
	switch step.Op {
	case OpAddHolder:
		var holder model.Holder
		if err := remarshal(step.Value, &holder); err != nil {
			return session.Outcome{}, err
		}
		return s.AddHolder(holder)
	case OpRenameHolder:
		return s.RenameHolder(step.Holder, step.To)
	case OpDeleteHolder:
		return s.DeleteHolder(step.Holder)
	case OpRenameGroup:
		return s.RenameGroup(step.Group, step.To)
	case OpAddRound:
		var round model.Round
		if err := remarshal(step.Value, &round); err != nil {
			return session.Outcome{}, err
		}
		return s.AddRound(round)
	case OpUpdateRound:
		var round model.Round
		if err := remarshal(step.Value, &round); err != nil {
			return session.Outcome{}, err
		}
		return s.UpdateRound(*step.Round, round)
	case OpChangeCalculationType:
		round, err := h.round(*step.Round)
		if err != nil {
			return session.Outcome{}, err
		}
		ct := model.CalculationType(fmt.Sprint(step.Value["calculation_type"]))
		return s.UpdateRound(*step.Round, round.ChangeCalculationType(ct))
	case OpDeleteRound:
		return s.DeleteRound(*step.Round)
	case OpAddInstrument:
		inst, err := h.instrument(*step.Round, step.Value)
		if err != nil {
			return session.Outcome{}, err
		}
		return s.AddInstrument(*step.Round, inst)
	case OpUpdateInstrument:
		inst, err := h.instrument(*step.Round, step.Value)
		if err != nil {
			return session.Outcome{}, err
		}
		return s.UpdateInstrument(*step.Round, *step.Instrument, inst)
	case OpDeleteInstrument:
		return s.DeleteInstrument(*step.Round, *step.Instrument)
	case OpEditGrant:
		inst, err := h.instrument(*step.Round, step.Value)
		if err != nil {
			return session.Outcome{}, err
		}
		return s.EditGrant(*step.Round, *step.Instrument, inst)
	case OpToggleExercise:
		return s.ToggleExercise(*step.Round, step.Holder)
	case OpEditAllocation:
		params, err := exerciseParams(step.Value)
		if err != nil {
			return session.Outcome{}, err
		}
		return s.EditAllocation(*step.Round, step.Holder, params)
	}
	return session.Outcome{}, fmt.Errorf("unknown op %q", step.Op)
}

func (h *Harness) round(ri int) (model.Round, error) {
	doc := h.session.Snapshot()
	if ri < 0 || ri >= len(doc.Rounds) {
		return model.Round{}, fmt.Errorf("round %d out of range", ri)
	}
	return doc.Rounds[ri], nil
}

// instrument decodes a flat instrument against the calculation type of
// round ri.
func (h *Harness) instrument(ri int, value map[string]any) (model.Instrument, error) {
	round, err := h.round(ri)
	if err != nil {
		return model.Instrument{}, err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return model.Instrument{}, err
	}
	return model.DecodeInstrument(data, round.CalculationType)
}

func exerciseParams(value map[string]any) (lineage.ExerciseParams, error) {
	params := lineage.ExerciseParams{
		ExerciseType: model.ExerciseType(fmt.Sprint(value["exercise_type"])),
	}
	var err error
	if params.PartialExerciseAmount, err = decimalArg(value, "partial_exercise_amount"); err != nil {
		return params, err
	}
	if params.PartialExercisePercentage, err = decimalArg(value, "partial_exercise_percentage"); err != nil {
		return params, err
	}
	return params, nil
}

func decimalArg(value map[string]any, key string) (decimal.NullDecimal, error) {
	v, ok := value[key]
	if !ok || v == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(fmt.Sprint(v))
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%s: %w", key, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func remarshal(value map[string]any, out any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func stepArgs(step FlowStep) map[string]any {
	args := make(map[string]any)
	if step.Round != nil {
		args["round"] = *step.Round
	}
	if step.Instrument != nil {
		args["instrument"] = *step.Instrument
	}
	if step.Holder != "" {
		args["holder"] = step.Holder
	}
	if step.Group != "" {
		args["group"] = step.Group
	}
	if step.To != "" {
		args["to"] = step.To
	}
	if step.Value != nil {
		args["value"] = step.Value
	}
	return args
}

func locationStrings(locs []lineage.Location) []string {
	if len(locs) == 0 {
		return nil
	}
	out := make([]string, len(locs))
	for i, l := range locs {
		out[i] = l.String()
	}
	return out
}

func outcomeCodes(errs map[int][]validate.ValidationError) map[string][]string {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string][]string, len(errs))
	for ri, list := range errs {
		out[strconv.Itoa(ri)] = codes(list)
	}
	return out
}

func codes(errs []validate.ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	sort.Strings(out)
	return out
}

func equalStrings(want, got []string) bool {
	if len(want) != len(got) {
		return false
	}
	w := append([]string(nil), want...)
	sort.Strings(w)
	g := append([]string(nil), got...)
	sort.Strings(g)
	for i := range w {
		if w[i] != g[i] {
			return false
		}
	}
	return true
}
