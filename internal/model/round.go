package model

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// SchemaVersion is the document schema version written by this package.
const SchemaVersion = "1.0"

// Holder is a named party owning equity. Name is the unique key that every
// instrument references.
type Holder struct {
	Name        string `json:"name"`
	Group       string `json:"group,omitempty"`
	Description string `json:"description,omitempty"`
}

// SameHolder reports whether two holder names denote the same holder.
// Names are compared after NFC normalization so that visually identical
// names typed on different platforms resolve to one holder.
func SameHolder(a, b string) bool {
	if a == b {
		return true
	}
	return norm.NFC.String(a) == norm.NFC.String(b)
}

// Round is a financing event issuing instruments under one calculation
// method.
type Round struct {
	Name            string
	RoundDate       Date
	CalculationType CalculationType
	ValuationBasis  ValuationBasis      // "" when absent
	Valuation       decimal.NullDecimal // required when CalculationType.NeedsValuation
	PricePerShare   decimal.NullDecimal
	Instruments     []Instrument
}

// Clone returns a copy of r that shares no slice with r.
func (r Round) Clone() Round {
	if r.Instruments != nil {
		r.Instruments = append([]Instrument(nil), r.Instruments...)
	}
	return r
}

// ChangeCalculationType returns r switched to ct. Instruments are specific to
// a calculation type and are cleared; valuation fields are cleared when ct
// does not use them. Switching to the current type is a no-op.
func (r Round) ChangeCalculationType(ct CalculationType) Round {
	if r.CalculationType == ct {
		return r
	}
	r.CalculationType = ct
	r.Instruments = []Instrument{}
	if !ct.NeedsValuation() {
		r.Valuation = decimal.NullDecimal{}
		r.ValuationBasis = ""
	}
	return r
}

// AllocationIndex returns the position of holder's pro-rata allocation in r.
func (r Round) AllocationIndex(holder string) (int, bool) {
	for i, inst := range r.Instruments {
		if inst.IsAllocation() && SameHolder(inst.HolderName, holder) {
			return i, true
		}
	}
	return -1, false
}

// Allocations returns the positions of all pro-rata allocations in r.
func (r Round) Allocations() []int {
	var out []int
	for i, inst := range r.Instruments {
		if inst.IsAllocation() {
			out = append(out, i)
		}
	}
	return out
}

// Ordinary returns the positions of all ordinary instruments in r.
func (r Round) Ordinary() []int {
	var out []int
	for i, inst := range r.Instruments {
		if inst.IsOrdinary() {
			out = append(out, i)
		}
	}
	return out
}

// Document is the exchanged aggregate: every holder and every round.
type Document struct {
	SchemaVersion string   `json:"schema_version"`
	Holders       []Holder `json:"holders"`
	Rounds        []Round  `json:"rounds"`
}

// NewDocument returns an empty document at the current schema version.
func NewDocument() Document {
	return Document{SchemaVersion: SchemaVersion, Holders: []Holder{}, Rounds: []Round{}}
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := Document{SchemaVersion: d.SchemaVersion}
	out.Holders = append([]Holder{}, d.Holders...)
	out.Rounds = make([]Round, len(d.Rounds))
	for i, r := range d.Rounds {
		out.Rounds[i] = r.Clone()
	}
	return out
}

// HolderIndex returns the position of the named holder.
func (d Document) HolderIndex(name string) (int, bool) {
	for i, h := range d.Holders {
		if SameHolder(h.Name, name) {
			return i, true
		}
	}
	return -1, false
}
