package model

// CalculationType selects how every instrument of a round is expressed.
type CalculationType string

const (
	CalcFixedShares      CalculationType = "fixed_shares"
	CalcTargetPercentage CalculationType = "target_percentage"
	CalcValuationBased   CalculationType = "valuation_based"
	CalcConvertible      CalculationType = "convertible"
	CalcSafe             CalculationType = "safe"
)

// CalculationTypes lists the supported calculation types in display order.
var CalculationTypes = []CalculationType{
	CalcFixedShares,
	CalcTargetPercentage,
	CalcValuationBased,
	CalcConvertible,
	CalcSafe,
}

// Valid reports whether ct is a known calculation type.
func (ct CalculationType) Valid() bool {
	switch ct {
	case CalcFixedShares, CalcTargetPercentage, CalcValuationBased, CalcConvertible, CalcSafe:
		return true
	}
	return false
}

// NeedsValuation reports whether rounds of this type carry a valuation and
// a valuation basis.
func (ct CalculationType) NeedsValuation() bool {
	return ct == CalcValuationBased || ct == CalcConvertible || ct == CalcSafe
}

// Kind returns the ordinary instrument kind issued by rounds of this type.
func (ct CalculationType) Kind() Kind {
	if !ct.Valid() {
		return ""
	}
	return Kind(ct)
}

// Kind discriminates the Instrument union.
type Kind string

const (
	KindFixedShares      Kind = "fixed_shares"
	KindTargetPercentage Kind = "target_percentage"
	KindValuationBased   Kind = "valuation_based"
	KindConvertible      Kind = "convertible"
	KindSafe             Kind = "safe"
	KindAllocation       Kind = "pro_rata_allocation"
)

// ValuationBasis says whether the round valuation is pre- or post-money.
type ValuationBasis string

const (
	PreMoney  ValuationBasis = "pre_money"
	PostMoney ValuationBasis = "post_money"
)

// Valid reports whether b is a known basis.
func (b ValuationBasis) Valid() bool {
	return b == PreMoney || b == PostMoney
}

// InterestType is the accrual convention of a convertible note.
type InterestType string

const (
	InterestSimple          InterestType = "simple"
	InterestCompoundYearly  InterestType = "compound_yearly"
	InterestCompoundMonthly InterestType = "compound_monthly"
	InterestCompoundDaily   InterestType = "compound_daily"
	InterestNone            InterestType = "no_interest"
)

// Valid reports whether t is a known interest type.
func (t InterestType) Valid() bool {
	switch t {
	case InterestSimple, InterestCompoundYearly, InterestCompoundMonthly, InterestCompoundDaily, InterestNone:
		return true
	}
	return false
}

// ValuationCapType selects which capitalization a valuation cap applies to.
type ValuationCapType string

const (
	CapDefault             ValuationCapType = "default"
	CapPreConversion       ValuationCapType = "pre_conversion"
	CapPostConversionOwn   ValuationCapType = "post_conversion_own"
	CapPostConversionTotal ValuationCapType = "post_conversion_total"
)

// Valid reports whether t is a known cap type.
func (t ValuationCapType) Valid() bool {
	switch t {
	case CapDefault, CapPreConversion, CapPostConversionOwn, CapPostConversionTotal:
		return true
	}
	return false
}

// ProRataType is the flavour of a pro-rata right. Standard rights maintain
// the holder's ownership; super rights allow buying up to a fixed percentage.
type ProRataType string

const (
	ProRataStandard ProRataType = "standard"
	ProRataSuper    ProRataType = "super"
)

// Valid reports whether t is a known pro-rata type.
func (t ProRataType) Valid() bool {
	return t == ProRataStandard || t == ProRataSuper
}

// ExerciseType says how much of a pro-rata right a holder takes up.
type ExerciseType string

const (
	ExerciseFull    ExerciseType = "full"
	ExercisePartial ExerciseType = "partial"
)

// Valid reports whether t is a known exercise type.
func (t ExerciseType) Valid() bool {
	return t == ExerciseFull || t == ExercisePartial
}

// DilutionMethod is the anti-dilution formula attached to a grant.
type DilutionMethod string

const (
	DilutionFullRatchet DilutionMethod = "full_ratchet"
	DilutionNarrowBased DilutionMethod = "narrow_based_weighted_average"
	DilutionBroadBased  DilutionMethod = "broad_based_weighted_average"
)

// Valid reports whether m is a known dilution method.
func (m DilutionMethod) Valid() bool {
	switch m {
	case DilutionFullRatchet, DilutionNarrowBased, DilutionBroadBased:
		return true
	}
	return false
}
