// Package model provides the cap table data model: holders, financing rounds,
// and the instruments issued within each round.
//
// This package contains types and pure helpers only. Every other internal
// package imports model; model imports nothing internal.
//
// Key design constraints:
//   - Instruments are an explicit tagged union (Instrument.Terms is a sealed
//     interface); the flat, key-presence JSON shape exists only at the codec
//     boundary (codec.go)
//   - Holders are referenced by name, never by a synthetic id
//   - All amounts and percentages are decimal.Decimal; percentages are
//     fractions (0.2 means 20%)
//   - Values are copied, never shared: Round.Clone and Document.Clone return
//     independent copies so whole-value replacements cannot alias
package model
