// Package testutil provides fixture builders and deterministic helpers for
// tests across the module.
package testutil

import (
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/roach88/captable/internal/model"
)

// D returns a present decimal parsed from s. It panics on malformed input.
func D(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

// Day returns the calendar date y-m-d.
func Day(y int, m time.Month, d int) model.Date {
	return model.NewDate(y, m, d)
}

// DecimalComparer makes cmp treat numerically equal decimals as equal, so
// 0.10 and 0.1 compare the same.
func DecimalComparer() cmp.Option {
	return cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })
}

// CompleteInstrument returns an ordinary instrument of the kind issued by ct
// with every required field set to a valid value.
func CompleteInstrument(ct model.CalculationType, holder, class string) model.Instrument {
	inst := model.Instrument{HolderName: holder, ClassName: class}
	switch ct {
	case model.CalcFixedShares:
		inst.Terms = model.FixedShares{InitialQuantity: D("1000000")}
	case model.CalcTargetPercentage:
		inst.Terms = model.TargetPercentage{TargetPercentage: D("0.15")}
	case model.CalcValuationBased:
		inst.Terms = model.ValuationBased{InvestmentAmount: D("2000000")}
	case model.CalcConvertible:
		inst.Terms = model.Convertible{
			InvestmentAmount:       D("250000"),
			PaymentDate:            Day(2023, time.March, 1),
			ExpectedConversionDate: Day(2024, time.March, 1),
			InterestRate:           D("0.05"),
			InterestType:           model.InterestSimple,
			DiscountRate:           D("0.2"),
		}
	case model.CalcSafe:
		inst.Terms = model.Safe{
			InvestmentAmount:       D("500000"),
			ExpectedConversionDate: Day(2024, time.June, 1),
			DiscountRate:           D("0.15"),
		}
	}
	return inst
}

// CompleteRound returns a valid round of calculation type ct holding the
// given instruments.
func CompleteRound(name string, ct model.CalculationType, instruments ...model.Instrument) model.Round {
	r := model.Round{
		Name:            name,
		RoundDate:       Day(2024, time.January, 15),
		CalculationType: ct,
		Instruments:     append([]model.Instrument{}, instruments...),
	}
	if ct.NeedsValuation() {
		r.ValuationBasis = model.PreMoney
		r.Valuation = D("10000000")
	}
	return r
}

// WithRights returns inst granting a pro-rata right of type t. percentage is
// only used for super rights; pass "" for none.
func WithRights(inst model.Instrument, t model.ProRataType, percentage string) model.Instrument {
	g := model.Grant{ProRataRights: t}
	if percentage != "" {
		g.ProRataPercentage = D(percentage)
	}
	return inst.WithGrant(g)
}

// AcmeDocument returns a two-round document: the seed round grants Acme
// super pro-rata rights at 20% on Common, the Series A round has not yet
// exercised them.
func AcmeDocument() model.Document {
	doc := model.NewDocument()
	doc.Holders = []model.Holder{
		{Name: "Founder", Group: "Founders"},
		{Name: "Acme", Group: "Investors", Description: "Acme Ventures"},
		{Name: "Beta Fund", Group: "Investors"},
	}
	seed := CompleteRound("Seed", model.CalcFixedShares,
		CompleteInstrument(model.CalcFixedShares, "Founder", "Common"),
		WithRights(CompleteInstrument(model.CalcFixedShares, "Acme", "Common"), model.ProRataSuper, "0.20"),
	)
	seed.RoundDate = Day(2023, time.January, 10)
	seriesA := CompleteRound("Series A", model.CalcValuationBased,
		CompleteInstrument(model.CalcValuationBased, "Beta Fund", "Preferred A"),
	)
	doc.Rounds = []model.Round{seed, seriesA}
	return doc
}
