package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Errors returned while decoding the flat instrument shape.
var (
	// ErrForeignField indicates an instrument carries a key that belongs to
	// a different instrument kind.
	ErrForeignField = errors.New("field belongs to another instrument kind")

	// ErrUnknownKind indicates the instrument kind could not be inferred from
	// the round's calculation type or from the keys present.
	ErrUnknownKind = errors.New("cannot determine instrument kind")
)

// JSON keys of the flat instrument shape.
const (
	keyHolderName                = "holder_name"
	keyClassName                 = "class_name"
	keyProRataRights             = "pro_rata_rights"
	keyProRataPercentage         = "pro_rata_percentage"
	keyDilutionMethod            = "dilution_method"
	keyInitialQuantity           = "initial_quantity"
	keyTargetPercentage          = "target_percentage"
	keyInvestmentAmount          = "investment_amount"
	keyPaymentDate               = "payment_date"
	keyExpectedConversionDate    = "expected_conversion_date"
	keyInterestRate              = "interest_rate"
	keyInterestType              = "interest_type"
	keyDiscountRate              = "discount_rate"
	keyValuationCap              = "valuation_cap"
	keyValuationCapType          = "valuation_cap_type"
	keyProRataType               = "pro_rata_type"
	keyExerciseType              = "exercise_type"
	keyPartialExerciseAmount     = "partial_exercise_amount"
	keyPartialExercisePercentage = "partial_exercise_percentage"
)

var grantKeys = []string{keyProRataRights, keyProRataPercentage, keyDilutionMethod}

// kindKeys lists the payload keys each kind may carry, besides holder_name
// and class_name.
var kindKeys = map[Kind][]string{
	KindFixedShares:      append([]string{keyInitialQuantity}, grantKeys...),
	KindTargetPercentage: append([]string{keyTargetPercentage}, grantKeys...),
	KindValuationBased:   append([]string{keyInvestmentAmount}, grantKeys...),
	KindConvertible: append([]string{
		keyInvestmentAmount, keyPaymentDate, keyExpectedConversionDate, keyInterestRate,
		keyInterestType, keyDiscountRate, keyValuationCap, keyValuationCapType,
	}, grantKeys...),
	KindSafe: append([]string{
		keyInvestmentAmount, keyExpectedConversionDate, keyDiscountRate,
		keyValuationCap, keyValuationCapType,
	}, grantKeys...),
	KindAllocation: {
		keyProRataType, keyProRataPercentage, keyExerciseType,
		keyPartialExerciseAmount, keyPartialExercisePercentage,
	},
}

// knownKeys is the union of every kind's keys. Keys outside this set are
// ignored on decode so documents may carry client-side annotations.
var knownKeys = func() map[string]bool {
	out := map[string]bool{keyHolderName: true, keyClassName: true}
	for _, keys := range kindKeys {
		for _, k := range keys {
			out[k] = true
		}
	}
	return out
}()

// DecodeInstrument decodes one flat instrument object. ct is the calculation
// type of the enclosing round; pass "" when unknown and the kind is inferred
// from the keys present. A present pro_rata_type always means allocation.
func DecodeInstrument(data []byte, ct CalculationType) (Instrument, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Instrument{}, fmt.Errorf("decode instrument: %w", err)
	}
	present := make(map[string]bool, len(raw))
	for k, v := range raw {
		if string(bytes.TrimSpace(v)) != "null" {
			present[k] = true
		}
	}

	kind := classify(present, ct)
	if kind == "" {
		return Instrument{}, ErrUnknownKind
	}
	allowed := map[string]bool{keyHolderName: true, keyClassName: true}
	for _, k := range kindKeys[kind] {
		allowed[k] = true
	}
	for k := range present {
		if knownKeys[k] && !allowed[k] {
			return Instrument{}, fmt.Errorf("%w: %q on %s instrument", ErrForeignField, k, kind)
		}
	}

	d := &fieldDecoder{raw: raw}
	inst := Instrument{
		HolderName: d.str(keyHolderName),
		ClassName:  d.str(keyClassName),
	}
	switch kind {
	case KindFixedShares:
		inst.Terms = FixedShares{InitialQuantity: d.dec(keyInitialQuantity), Grant: d.grant()}
	case KindTargetPercentage:
		inst.Terms = TargetPercentage{TargetPercentage: d.dec(keyTargetPercentage), Grant: d.grant()}
	case KindValuationBased:
		inst.Terms = ValuationBased{InvestmentAmount: d.dec(keyInvestmentAmount), Grant: d.grant()}
	case KindConvertible:
		inst.Terms = Convertible{
			InvestmentAmount:       d.dec(keyInvestmentAmount),
			PaymentDate:            d.date(keyPaymentDate),
			ExpectedConversionDate: d.date(keyExpectedConversionDate),
			InterestRate:           d.dec(keyInterestRate),
			InterestType:           InterestType(d.str(keyInterestType)),
			DiscountRate:           d.dec(keyDiscountRate),
			ValuationCap:           d.dec(keyValuationCap),
			ValuationCapType:       ValuationCapType(d.str(keyValuationCapType)),
			Grant:                  d.grant(),
		}
	case KindSafe:
		inst.Terms = Safe{
			InvestmentAmount:       d.dec(keyInvestmentAmount),
			ExpectedConversionDate: d.date(keyExpectedConversionDate),
			DiscountRate:           d.dec(keyDiscountRate),
			ValuationCap:           d.dec(keyValuationCap),
			ValuationCapType:       ValuationCapType(d.str(keyValuationCapType)),
			Grant:                  d.grant(),
		}
	case KindAllocation:
		inst.Terms = Allocation{
			ProRataType:               ProRataType(d.str(keyProRataType)),
			ProRataPercentage:         d.dec(keyProRataPercentage),
			ExerciseType:              ExerciseType(d.str(keyExerciseType)),
			PartialExerciseAmount:     d.dec(keyPartialExerciseAmount),
			PartialExercisePercentage: d.dec(keyPartialExercisePercentage),
		}
	}
	if d.err != nil {
		return Instrument{}, d.err
	}
	return inst, nil
}

// classify picks the instrument kind. The enclosing round's calculation type
// wins over key probing because instruments are calculation-type specific.
func classify(present map[string]bool, ct CalculationType) Kind {
	if present[keyProRataType] {
		return KindAllocation
	}
	if ct.Valid() {
		return ct.Kind()
	}
	switch {
	case present[keyInitialQuantity]:
		return KindFixedShares
	case present[keyTargetPercentage]:
		return KindTargetPercentage
	case present[keyPaymentDate], present[keyInterestRate], present[keyInterestType]:
		return KindConvertible
	case present[keyExpectedConversionDate], present[keyDiscountRate],
		present[keyValuationCap], present[keyValuationCapType]:
		return KindSafe
	case present[keyInvestmentAmount]:
		return KindValuationBased
	}
	return ""
}

// fieldDecoder decodes individual keys and keeps the first error.
type fieldDecoder struct {
	raw map[string]json.RawMessage
	err error
}

func (d *fieldDecoder) fail(key string, err error) {
	if d.err == nil {
		d.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (d *fieldDecoder) str(key string) string {
	v, ok := d.raw[key]
	if !ok {
		return ""
	}
	var s *string
	if err := json.Unmarshal(v, &s); err != nil {
		d.fail(key, err)
		return ""
	}
	if s == nil {
		return ""
	}
	return *s
}

func (d *fieldDecoder) dec(key string) decimal.NullDecimal {
	v, ok := d.raw[key]
	if !ok {
		return decimal.NullDecimal{}
	}
	var n decimal.NullDecimal
	if err := n.UnmarshalJSON(v); err != nil {
		d.fail(key, err)
		return decimal.NullDecimal{}
	}
	return n
}

func (d *fieldDecoder) date(key string) Date {
	v, ok := d.raw[key]
	if !ok {
		return Date{}
	}
	var out Date
	if err := out.UnmarshalJSON(v); err != nil {
		d.fail(key, err)
		return Date{}
	}
	return out
}

func (d *fieldDecoder) grant() Grant {
	return Grant{
		ProRataRights:     ProRataType(d.str(keyProRataRights)),
		ProRataPercentage: d.dec(keyProRataPercentage),
		DilutionMethod:    DilutionMethod(d.str(keyDilutionMethod)),
	}
}

// objectWriter emits a JSON object with keys in insertion order. Absent
// values (empty strings, invalid decimals, zero dates) are skipped, which is
// what makes the instrument shape key-presence discriminated.
type objectWriter struct {
	buf   bytes.Buffer
	count int
	err   error
}

func (w *objectWriter) put(key string, v any) {
	if w.err != nil {
		return
	}
	val, err := json.Marshal(v)
	if err != nil {
		w.err = fmt.Errorf("encode %s: %w", key, err)
		return
	}
	if w.count == 0 {
		w.buf.WriteByte('{')
	} else {
		w.buf.WriteByte(',')
	}
	k, _ := json.Marshal(key)
	w.buf.Write(k)
	w.buf.WriteByte(':')
	w.buf.Write(val)
	w.count++
}

func (w *objectWriter) str(key, s string) {
	if s != "" {
		w.put(key, s)
	}
}

func (w *objectWriter) dec(key string, d decimal.NullDecimal) {
	if d.Valid {
		w.put(key, json.Number(d.Decimal.String()))
	}
}

func (w *objectWriter) date(key string, d Date) {
	if !d.IsZero() {
		w.put(key, d.String())
	}
}

func (w *objectWriter) grant(g Grant) {
	w.str(keyProRataRights, string(g.ProRataRights))
	w.dec(keyProRataPercentage, g.ProRataPercentage)
	w.str(keyDilutionMethod, string(g.DilutionMethod))
}

func (w *objectWriter) bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	if w.count == 0 {
		return []byte("{}"), nil
	}
	w.buf.WriteByte('}')
	return w.buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler using the flat, untagged shape.
// holder_name and class_name are always written; other keys only when set.
func (i Instrument) MarshalJSON() ([]byte, error) {
	w := &objectWriter{}
	w.put(keyHolderName, i.HolderName)
	w.put(keyClassName, i.ClassName)
	switch t := i.Terms.(type) {
	case FixedShares:
		w.dec(keyInitialQuantity, t.InitialQuantity)
		w.grant(t.Grant)
	case TargetPercentage:
		w.dec(keyTargetPercentage, t.TargetPercentage)
		w.grant(t.Grant)
	case ValuationBased:
		w.dec(keyInvestmentAmount, t.InvestmentAmount)
		w.grant(t.Grant)
	case Convertible:
		w.dec(keyInvestmentAmount, t.InvestmentAmount)
		w.date(keyPaymentDate, t.PaymentDate)
		w.date(keyExpectedConversionDate, t.ExpectedConversionDate)
		w.dec(keyInterestRate, t.InterestRate)
		w.str(keyInterestType, string(t.InterestType))
		w.dec(keyDiscountRate, t.DiscountRate)
		w.dec(keyValuationCap, t.ValuationCap)
		w.str(keyValuationCapType, string(t.ValuationCapType))
		w.grant(t.Grant)
	case Safe:
		w.dec(keyInvestmentAmount, t.InvestmentAmount)
		w.date(keyExpectedConversionDate, t.ExpectedConversionDate)
		w.dec(keyDiscountRate, t.DiscountRate)
		w.dec(keyValuationCap, t.ValuationCap)
		w.str(keyValuationCapType, string(t.ValuationCapType))
		w.grant(t.Grant)
	case Allocation:
		w.str(keyProRataType, string(t.ProRataType))
		w.dec(keyProRataPercentage, t.ProRataPercentage)
		w.str(keyExerciseType, string(t.ExerciseType))
		w.dec(keyPartialExerciseAmount, t.PartialExerciseAmount)
		w.dec(keyPartialExercisePercentage, t.PartialExercisePercentage)
	case nil:
		return nil, ErrUnknownKind
	}
	return w.bytes()
}

// UnmarshalJSON implements json.Unmarshaler. Without the enclosing round the
// kind is inferred from key presence only; Round.UnmarshalJSON passes the
// round's calculation type instead.
func (i *Instrument) UnmarshalJSON(data []byte) error {
	inst, err := DecodeInstrument(data, "")
	if err != nil {
		return err
	}
	*i = inst
	return nil
}

// MarshalJSON implements json.Marshaler.
func (r Round) MarshalJSON() ([]byte, error) {
	w := &objectWriter{}
	w.put("name", r.Name)
	w.date("round_date", r.RoundDate)
	w.put("calculation_type", r.CalculationType)
	w.str("valuation_basis", string(r.ValuationBasis))
	w.dec("valuation", r.Valuation)
	w.dec("price_per_share", r.PricePerShare)
	instruments := r.Instruments
	if instruments == nil {
		instruments = []Instrument{}
	}
	w.put("instruments", instruments)
	return w.bytes()
}

// UnmarshalJSON implements json.Unmarshaler. Each instrument is classified
// against the round's calculation type.
func (r *Round) UnmarshalJSON(data []byte) error {
	var wire struct {
		Name            string              `json:"name"`
		RoundDate       Date                `json:"round_date"`
		CalculationType CalculationType     `json:"calculation_type"`
		ValuationBasis  ValuationBasis      `json:"valuation_basis"`
		Valuation       decimal.NullDecimal `json:"valuation"`
		PricePerShare   decimal.NullDecimal `json:"price_per_share"`
		Instruments     []json.RawMessage   `json:"instruments"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := Round{
		Name:            wire.Name,
		RoundDate:       wire.RoundDate,
		CalculationType: wire.CalculationType,
		ValuationBasis:  wire.ValuationBasis,
		Valuation:       wire.Valuation,
		PricePerShare:   wire.PricePerShare,
		Instruments:     make([]Instrument, 0, len(wire.Instruments)),
	}
	for i, raw := range wire.Instruments {
		inst, err := DecodeInstrument(raw, wire.CalculationType)
		if err != nil {
			return fmt.Errorf("instruments[%d]: %w", i, err)
		}
		out.Instruments = append(out.Instruments, inst)
	}
	*r = out
	return nil
}

// MarshalJSON implements json.Marshaler. Empty collections encode as [].
func (d Document) MarshalJSON() ([]byte, error) {
	type wire Document
	w := wire(d)
	if w.Holders == nil {
		w.Holders = []Holder{}
	}
	if w.Rounds == nil {
		w.Rounds = []Round{}
	}
	return json.Marshal(w)
}
