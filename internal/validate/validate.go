// Package validate implements the business rules that make a round complete.
//
// Validation is a pure function: it never panics, never stops at the first
// problem, and addresses every error to a field path (instruments[i].field
// for instrument fields, the bare name for round fields).
package validate

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/roach88/captable/internal/model"
)

// Validation error codes (E200-E249)
const (
	// Round errors (E201-E209)
	ErrRoundNameEmpty           = "E201" // round name is required
	ErrRoundDateMissing         = "E202" // round date is required
	ErrUnknownCalculationType   = "E203" // calculation type not recognized
	ErrValuationNotPositive     = "E204" // valuation missing or not > 0
	ErrValuationBasisMissing    = "E205" // valuation basis required
	ErrPricePerShareNotPositive = "E206" // price per share must be > 0

	// Instrument basics (E210-E219)
	ErrHolderNameEmpty = "E210" // holder_name is required
	ErrClassNameEmpty  = "E211" // class_name is required
	ErrKindMismatch    = "E212" // instrument kind does not fit the round

	// Field rules (E220-E229)
	ErrRequiredField      = "E220" // kind-specific field missing
	ErrNotPositive        = "E221" // amount must be > 0
	ErrPercentageTooHigh  = "E222" // percentage >= 100%
	ErrPercentageNegative = "E223" // percentage < 0
	ErrInvalidEnum        = "E224" // value outside its enum

	// Pro-rata rules (E230-E239)
	ErrSuperPercentageMissing       = "E230" // super pro-rata needs a percentage
	ErrRightsWithoutCap             = "E231" // rights on convertible/SAFE need own cap
	ErrPartialBoundMissing          = "E232" // partial exercise needs amount or percentage
	ErrPartialPercentageNotPositive = "E233" // partial percentage must be > 0
	ErrPartialPercentageTooHigh     = "E234" // partial percentage >= super percentage
	ErrDuplicateAllocation          = "E235" // two allocations for one holder

	// Document errors (E240-E249)
	ErrDuplicateHolder = "E240" // holder names must be unique
	ErrHolderNameBlank = "E241" // holder name is required
	ErrUnknownHolder   = "E242" // instrument references a missing holder
)

// ValidationError is a business-rule violation attached to a field path.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

var one = decimal.NewFromInt(1)

type collector struct {
	errs []ValidationError
}

func (c *collector) add(field, code, format string, args ...any) {
	c.errs = append(c.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Code:    code,
	})
}

// Validate returns every rule violation in round. An empty result means the
// round is complete.
func Validate(round model.Round) []ValidationError {
	c := &collector{}
	validateRoundFields(c, round)

	allocated := make(map[string]int)
	for i, inst := range round.Instruments {
		validateInstrument(c, round, i, inst)

		if inst.IsAllocation() {
			key := holderKey(inst.HolderName)
			if first, seen := allocated[key]; seen {
				c.add(instField(i, "holder_name"), ErrDuplicateAllocation,
					"holder %q already has a pro-rata allocation in this round (instruments[%d])", inst.HolderName, first)
			} else {
				allocated[key] = i
			}
		}
	}
	return c.errs
}

// Complete reports whether round has no validation errors.
func Complete(round model.Round) bool {
	return len(Validate(round)) == 0
}

// CheckPercentage applies the percentage rule to a fraction: values must lie
// in [0, 1). The 100% boundary is always rejected.
func CheckPercentage(field string, v decimal.Decimal) []ValidationError {
	c := &collector{}
	checkPercentage(c, field, v)
	return c.errs
}

func checkPercentage(c *collector, field string, v decimal.Decimal) {
	name := lastSegment(field)
	switch {
	case v.IsNegative():
		c.add(field, ErrPercentageNegative, "%s must not be negative", name)
	case v.GreaterThanOrEqual(one):
		c.add(field, ErrPercentageTooHigh, "%s must be below 100%%", name)
	}
}

func validateRoundFields(c *collector, round model.Round) {
	if strings.TrimSpace(round.Name) == "" {
		c.add("name", ErrRoundNameEmpty, "round name is required")
	}
	if round.RoundDate.IsZero() {
		c.add("round_date", ErrRoundDateMissing, "round date is required")
	}
	if !round.CalculationType.Valid() {
		c.add("calculation_type", ErrUnknownCalculationType, "unknown calculation type %q", round.CalculationType)
	}

	if round.CalculationType.NeedsValuation() {
		switch {
		case !round.Valuation.Valid:
			c.add("valuation", ErrValuationNotPositive, "valuation is required for %s rounds", round.CalculationType)
		case !round.Valuation.Decimal.IsPositive():
			c.add("valuation", ErrValuationNotPositive, "valuation must be greater than 0")
		}
		if round.ValuationBasis == "" {
			c.add("valuation_basis", ErrValuationBasisMissing, "valuation basis is required for %s rounds", round.CalculationType)
		}
	}
	if round.ValuationBasis != "" && !round.ValuationBasis.Valid() {
		c.add("valuation_basis", ErrInvalidEnum, "invalid valuation basis %q", round.ValuationBasis)
	}
	if round.PricePerShare.Valid && !round.PricePerShare.Decimal.IsPositive() {
		c.add("price_per_share", ErrPricePerShareNotPositive, "price per share must be greater than 0")
	}
}

func validateInstrument(c *collector, round model.Round, i int, inst model.Instrument) {
	if strings.TrimSpace(inst.HolderName) == "" {
		c.add(instField(i, "holder_name"), ErrHolderNameEmpty, "holder name is required")
	}
	if strings.TrimSpace(inst.ClassName) == "" {
		c.add(instField(i, "class_name"), ErrClassNameEmpty, "class name is required")
	}

	if inst.Terms == nil {
		c.add(instField(i, "kind"), ErrKindMismatch, "instrument has no terms")
		return
	}
	if inst.IsOrdinary() && round.CalculationType.Valid() && inst.Kind() != round.CalculationType.Kind() {
		c.add(instField(i, "kind"), ErrKindMismatch,
			"%s instrument cannot be issued in a %s round", inst.Kind(), round.CalculationType)
	}

	v := &fieldRules{c: c, index: i}
	switch t := inst.Terms.(type) {
	case model.FixedShares:
		v.positive("initial_quantity", t.InitialQuantity, true)
		v.grant(t.Grant)
	case model.TargetPercentage:
		v.percentage("target_percentage", t.TargetPercentage, true)
		v.grant(t.Grant)
	case model.ValuationBased:
		v.positive("investment_amount", t.InvestmentAmount, true)
		v.grant(t.Grant)
	case model.Convertible:
		v.positive("investment_amount", t.InvestmentAmount, true)
		v.date("payment_date", t.PaymentDate)
		v.date("expected_conversion_date", t.ExpectedConversionDate)
		v.percentage("interest_rate", t.InterestRate, true)
		v.enum("interest_type", string(t.InterestType), t.InterestType == "" || t.InterestType.Valid())
		v.percentage("discount_rate", t.DiscountRate, true)
		v.cap(t.ValuationCap, t.ValuationCapType, t.Grant)
		v.grant(t.Grant)
	case model.Safe:
		v.positive("investment_amount", t.InvestmentAmount, true)
		v.date("expected_conversion_date", t.ExpectedConversionDate)
		v.percentage("discount_rate", t.DiscountRate, true)
		v.cap(t.ValuationCap, t.ValuationCapType, t.Grant)
		v.grant(t.Grant)
	case model.Allocation:
		v.allocation(t)
	}
}

// fieldRules applies field-level rules to one instrument.
type fieldRules struct {
	c     *collector
	index int
}

func (v *fieldRules) field(name string) string {
	return instField(v.index, name)
}

func (v *fieldRules) required(name string) {
	v.c.add(v.field(name), ErrRequiredField, "%s is required", name)
}

func (v *fieldRules) positive(name string, d decimal.NullDecimal, required bool) {
	if !d.Valid {
		if required {
			v.required(name)
		}
		return
	}
	if !d.Decimal.IsPositive() {
		v.c.add(v.field(name), ErrNotPositive, "%s must be greater than 0", name)
	}
}

func (v *fieldRules) percentage(name string, d decimal.NullDecimal, required bool) {
	if !d.Valid {
		if required {
			v.required(name)
		}
		return
	}
	checkPercentage(v.c, v.field(name), d.Decimal)
}

func (v *fieldRules) date(name string, d model.Date) {
	if d.IsZero() {
		v.required(name)
	}
}

func (v *fieldRules) enum(name, value string, ok bool) {
	if !ok {
		v.c.add(v.field(name), ErrInvalidEnum, "invalid %s %q", name, value)
	}
}

// cap checks a convertible or SAFE valuation cap. Rights and dilution
// protection are only allowed when the instrument has its own cap.
func (v *fieldRules) cap(amount decimal.NullDecimal, capType model.ValuationCapType, g model.Grant) {
	v.positive("valuation_cap", amount, false)
	v.enum("valuation_cap_type", string(capType), capType == "" || capType.Valid())
	if amount.Valid {
		return
	}
	if g.HasRights() {
		v.c.add(v.field("pro_rata_rights"), ErrRightsWithoutCap,
			"pro-rata rights require the instrument's own valuation cap")
	}
	if g.DilutionMethod != "" {
		v.c.add(v.field("dilution_method"), ErrRightsWithoutCap,
			"dilution method requires the instrument's own valuation cap")
	}
}

func (v *fieldRules) grant(g model.Grant) {
	v.enum("pro_rata_rights", string(g.ProRataRights), g.ProRataRights == "" || g.ProRataRights.Valid())
	v.enum("dilution_method", string(g.DilutionMethod), g.DilutionMethod == "" || g.DilutionMethod.Valid())
	v.super(g.ProRataRights, g.ProRataPercentage)
}

// super applies the percentage rule to the pro-rata percentage of a super
// right, whether granted or exercised.
func (v *fieldRules) super(t model.ProRataType, pct decimal.NullDecimal) {
	if t != model.ProRataSuper {
		return
	}
	if !pct.Valid {
		v.c.add(v.field("pro_rata_percentage"), ErrSuperPercentageMissing,
			"super pro-rata rights require a pro-rata percentage")
		return
	}
	checkPercentage(v.c, v.field("pro_rata_percentage"), pct.Decimal)
}

func (v *fieldRules) allocation(a model.Allocation) {
	v.enum("pro_rata_type", string(a.ProRataType), a.ProRataType.Valid())
	v.super(a.ProRataType, a.ProRataPercentage)

	switch {
	case a.ExerciseType == "":
		v.required("exercise_type")
	case !a.ExerciseType.Valid():
		v.enum("exercise_type", string(a.ExerciseType), false)
	}

	v.positive("partial_exercise_amount", a.PartialExerciseAmount, false)
	if a.PartialExercisePercentage.Valid {
		pct := a.PartialExercisePercentage.Decimal
		before := len(v.c.errs)
		checkPercentage(v.c, v.field("partial_exercise_percentage"), pct)
		if len(v.c.errs) == before && pct.IsZero() {
			v.c.add(v.field("partial_exercise_percentage"), ErrPartialPercentageNotPositive,
				"partial_exercise_percentage must be greater than 0")
		}
	}

	if a.ExerciseType != model.ExercisePartial {
		return
	}
	if !a.PartialExerciseAmount.Valid && !a.PartialExercisePercentage.Valid {
		v.c.add(v.field("partial_exercise_amount"), ErrPartialBoundMissing,
			"partial exercise requires an amount or a percentage")
	}
	if a.ProRataType == model.ProRataSuper && a.ProRataPercentage.Valid && a.PartialExercisePercentage.Valid &&
		a.PartialExercisePercentage.Decimal.GreaterThanOrEqual(a.ProRataPercentage.Decimal) {
		v.c.add(v.field("partial_exercise_percentage"), ErrPartialPercentageTooHigh,
			"partial_exercise_percentage must be lower than the pro-rata percentage (%s%%)",
			a.ProRataPercentage.Decimal.Shift(2).String())
	}
}

func instField(i int, name string) string {
	return fmt.Sprintf("instruments[%d].%s", i, name)
}

func lastSegment(field string) string {
	if idx := strings.LastIndexByte(field, '.'); idx >= 0 {
		return field[idx+1:]
	}
	return field
}
