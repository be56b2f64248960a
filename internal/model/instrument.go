package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrUnknownCalculationType is returned by NewInstrument for a calculation
// type outside CalculationTypes.
var ErrUnknownCalculationType = errors.New("unknown calculation type")

// Terms is a sealed interface over the instrument variants.
// Only FixedShares, TargetPercentage, ValuationBased, Convertible, Safe and
// Allocation implement it.
type Terms interface {
	Kind() Kind
	terms() // Sealed
}

// grantBearer is implemented by the ordinary variants, the ones that may
// carry pro-rata rights. Allocation deliberately does not implement it.
type grantBearer interface {
	Terms
	grant() Grant
	withGrant(Grant) Terms
}

// Grant holds the pro-rata right and dilution protection an ordinary
// instrument confers on its holder.
type Grant struct {
	ProRataRights     ProRataType         // "" when the instrument grants no right
	ProRataPercentage decimal.NullDecimal // only meaningful for super rights
	DilutionMethod    DilutionMethod      // "" when unset
}

// HasRights reports whether the grant confers a pro-rata right.
func (g Grant) HasRights() bool {
	return g.ProRataRights != ""
}

// FixedShares issues an absolute number of shares.
type FixedShares struct {
	InitialQuantity decimal.NullDecimal
	Grant
}

// TargetPercentage issues whatever number of shares yields the target
// post-round ownership fraction.
type TargetPercentage struct {
	TargetPercentage decimal.NullDecimal
	Grant
}

// ValuationBased converts an investment amount at the round price.
type ValuationBased struct {
	InvestmentAmount decimal.NullDecimal
	Grant
}

// Convertible is an interest-bearing note converting at a later round.
type Convertible struct {
	InvestmentAmount       decimal.NullDecimal
	PaymentDate            Date
	ExpectedConversionDate Date
	InterestRate           decimal.NullDecimal
	InterestType           InterestType
	DiscountRate           decimal.NullDecimal
	ValuationCap           decimal.NullDecimal
	ValuationCapType       ValuationCapType
	Grant
}

// Safe is a simple agreement for future equity: a convertible without
// payment date or interest.
type Safe struct {
	InvestmentAmount       decimal.NullDecimal
	ExpectedConversionDate Date
	DiscountRate           decimal.NullDecimal
	ValuationCap           decimal.NullDecimal
	ValuationCapType       ValuationCapType
	Grant
}

// Allocation is the exercise, in a later round, of a pro-rata right granted
// earlier. ProRataType and ProRataPercentage are a cached projection of the
// originating grant; the exercise fields are chosen by the holder.
type Allocation struct {
	ProRataType               ProRataType
	ProRataPercentage         decimal.NullDecimal
	ExerciseType              ExerciseType
	PartialExerciseAmount     decimal.NullDecimal
	PartialExercisePercentage decimal.NullDecimal
}

func (FixedShares) Kind() Kind      { return KindFixedShares }
func (TargetPercentage) Kind() Kind { return KindTargetPercentage }
func (ValuationBased) Kind() Kind   { return KindValuationBased }
func (Convertible) Kind() Kind      { return KindConvertible }
func (Safe) Kind() Kind             { return KindSafe }
func (Allocation) Kind() Kind       { return KindAllocation }

func (FixedShares) terms()      {}
func (TargetPercentage) terms() {}
func (ValuationBased) terms()   {}
func (Convertible) terms()      {}
func (Safe) terms()             {}
func (Allocation) terms()       {}

func (t FixedShares) grant() Grant      { return t.Grant }
func (t TargetPercentage) grant() Grant { return t.Grant }
func (t ValuationBased) grant() Grant   { return t.Grant }
func (t Convertible) grant() Grant      { return t.Grant }
func (t Safe) grant() Grant             { return t.Grant }

func (t FixedShares) withGrant(g Grant) Terms      { t.Grant = g; return t }
func (t TargetPercentage) withGrant(g Grant) Terms { t.Grant = g; return t }
func (t ValuationBased) withGrant(g Grant) Terms   { t.Grant = g; return t }
func (t Convertible) withGrant(g Grant) Terms      { t.Grant = g; return t }
func (t Safe) withGrant(g Grant) Terms             { t.Grant = g; return t }

// Instrument is an equity grant or investment record for one holder and
// security class within a round.
type Instrument struct {
	HolderName string
	ClassName  string
	Terms      Terms
}

// NewInstrument returns a zero-valued instrument of the shape issued by
// rounds of calculation type ct.
func NewInstrument(ct CalculationType) (Instrument, error) {
	var terms Terms
	switch ct {
	case CalcFixedShares:
		terms = FixedShares{}
	case CalcTargetPercentage:
		terms = TargetPercentage{}
	case CalcValuationBased:
		terms = ValuationBased{}
	case CalcConvertible:
		terms = Convertible{}
	case CalcSafe:
		terms = Safe{}
	default:
		return Instrument{}, fmt.Errorf("%w: %q", ErrUnknownCalculationType, ct)
	}
	return Instrument{Terms: terms}, nil
}

// NewAllocation returns a full exercise of a pro-rata right of the given
// type. percentage is only kept for super rights.
func NewAllocation(holder, class string, t ProRataType, percentage decimal.NullDecimal) Instrument {
	alloc := Allocation{
		ProRataType:  t,
		ExerciseType: ExerciseFull,
	}
	if t == ProRataSuper {
		alloc.ProRataPercentage = percentage
	}
	return Instrument{HolderName: holder, ClassName: class, Terms: alloc}
}

// Kind returns the variant tag, or "" for an instrument without terms.
func (i Instrument) Kind() Kind {
	if i.Terms == nil {
		return ""
	}
	return i.Terms.Kind()
}

// IsAllocation reports whether i is a pro-rata allocation.
func (i Instrument) IsAllocation() bool {
	_, ok := i.Terms.(Allocation)
	return ok
}

// IsOrdinary reports whether i is one of the five grant kinds.
func (i Instrument) IsOrdinary() bool {
	_, ok := i.Terms.(grantBearer)
	return ok
}

// Grant returns the pro-rata grant of an ordinary instrument.
func (i Instrument) Grant() (Grant, bool) {
	gb, ok := i.Terms.(grantBearer)
	if !ok {
		return Grant{}, false
	}
	return gb.grant(), true
}

// WithGrant returns a copy of i carrying g. Allocations are returned
// unchanged: they never carry grants.
func (i Instrument) WithGrant(g Grant) Instrument {
	gb, ok := i.Terms.(grantBearer)
	if !ok {
		return i
	}
	i.Terms = gb.withGrant(g)
	return i
}

// HasRights reports whether i is an ordinary instrument granting a
// pro-rata right.
func (i Instrument) HasRights() bool {
	g, ok := i.Grant()
	return ok && g.HasRights()
}

// Allocation returns the allocation terms of a pro-rata allocation.
func (i Instrument) Allocation() (Allocation, bool) {
	a, ok := i.Terms.(Allocation)
	return a, ok
}

// WithAllocation returns a copy of i with the allocation terms replaced.
// Ordinary instruments are returned unchanged.
func (i Instrument) WithAllocation(a Allocation) Instrument {
	if !i.IsAllocation() {
		return i
	}
	i.Terms = a
	return i
}

// ValuationCap returns the instrument's own valuation cap. Only convertibles
// and SAFEs have one.
func (i Instrument) ValuationCap() decimal.NullDecimal {
	switch t := i.Terms.(type) {
	case Convertible:
		return t.ValuationCap
	case Safe:
		return t.ValuationCap
	}
	return decimal.NullDecimal{}
}

// SupportsRights reports whether a pro-rata right may be set on i.
// Convertibles and SAFEs that fall back to the round's cap may not carry one.
func (i Instrument) SupportsRights() bool {
	switch i.Terms.(type) {
	case Convertible, Safe:
		return i.ValuationCap().Valid
	case nil, Allocation:
		return false
	}
	return true
}

// Normalize returns i with fields that cannot apply cleared:
// rights and dilution method on convertibles/SAFEs without their own cap,
// the cap type when there is no cap, and the percentage of standard rights.
// Exercise parameters of allocations are never touched.
func (i Instrument) Normalize() Instrument {
	switch t := i.Terms.(type) {
	case Convertible:
		if !t.ValuationCap.Valid {
			t.ValuationCapType = ""
			t.Grant = Grant{}
		}
		i.Terms = t
	case Safe:
		if !t.ValuationCap.Valid {
			t.ValuationCapType = ""
			t.Grant = Grant{}
		}
		i.Terms = t
	case Allocation:
		if t.ProRataType != ProRataSuper {
			t.ProRataPercentage = decimal.NullDecimal{}
		}
		i.Terms = t
	}
	if g, ok := i.Grant(); ok && g.ProRataRights != ProRataSuper {
		g.ProRataPercentage = decimal.NullDecimal{}
		i = i.WithGrant(g)
	}
	return i
}

// Equal reports whether i and other encode to the same flat JSON object.
func (i Instrument) Equal(other Instrument) bool {
	a, errA := i.MarshalJSON()
	b, errB := other.MarshalJSON()
	return errA == nil && errB == nil && string(a) == string(b)
}

// Bound returns the field that limits a partial exercise and its value.
// When both a percentage and an amount are set the percentage binds and the
// amount is advisory. ok is false for full exercises and unbounded partials.
func (a Allocation) Bound() (field string, value decimal.Decimal, ok bool) {
	if a.ExerciseType != ExercisePartial {
		return "", decimal.Decimal{}, false
	}
	if a.PartialExercisePercentage.Valid {
		return keyPartialExercisePercentage, a.PartialExercisePercentage.Decimal, true
	}
	if a.PartialExerciseAmount.Valid {
		return keyPartialExerciseAmount, a.PartialExerciseAmount.Decimal, true
	}
	return "", decimal.Decimal{}, false
}

// AdvisoryAmount reports whether a partial exercise carries an amount that
// does not bind because a percentage is also set.
func (a Allocation) AdvisoryAmount() bool {
	return a.ExerciseType == ExercisePartial && a.PartialExercisePercentage.Valid && a.PartialExerciseAmount.Valid
}
