package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentMarshalFlat(t *testing.T) {
	tests := []struct {
		name     string
		inst     Instrument
		expected string
	}{
		{
			name: "fixed shares with super rights",
			inst: Instrument{HolderName: "Acme", ClassName: "Common", Terms: FixedShares{
				InitialQuantity: num("1000"),
				Grant:           Grant{ProRataRights: ProRataSuper, ProRataPercentage: num("0.20")},
			}},
			expected: `{"holder_name":"Acme","class_name":"Common","initial_quantity":1000,"pro_rata_rights":"super","pro_rata_percentage":0.2}`,
		},
		{
			name:     "empty target percentage",
			inst:     Instrument{Terms: TargetPercentage{}},
			expected: `{"holder_name":"","class_name":""}`,
		},
		{
			name: "convertible",
			inst: Instrument{HolderName: "Angel", ClassName: "Note", Terms: Convertible{
				InvestmentAmount:       num("50000"),
				PaymentDate:            NewDate(2024, time.January, 10),
				ExpectedConversionDate: NewDate(2025, time.January, 10),
				InterestRate:           num("0.05"),
				InterestType:           InterestSimple,
				DiscountRate:           num("0.2"),
			}},
			expected: `{"holder_name":"Angel","class_name":"Note","investment_amount":50000,"payment_date":"2024-01-10","expected_conversion_date":"2025-01-10","interest_rate":0.05,"interest_type":"simple","discount_rate":0.2}`,
		},
		{
			name:     "allocation",
			inst:     NewAllocation("Acme", "Common", ProRataSuper, num("0.2")),
			expected: `{"holder_name":"Acme","class_name":"Common","pro_rata_type":"super","pro_rata_percentage":0.2,"exercise_type":"full"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.inst)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(b))
		})
	}
}

func TestInstrumentMarshalWithoutTerms(t *testing.T) {
	_, err := Instrument{HolderName: "A"}.MarshalJSON()
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestRoundUnmarshalClassifiesByCalculationType(t *testing.T) {
	data := `{
		"name": "Bridge",
		"round_date": "2024-06-01",
		"calculation_type": "convertible",
		"valuation_basis": "pre_money",
		"valuation": "8000000",
		"instruments": [
			{"holder_name": "Angel", "class_name": "Note", "investment_amount": "50000",
			 "payment_date": "2024-01-01", "interest_rate": 0.05, "interest_type": "simple",
			 "discount_rate": 0.2},
			{"holder_name": "Acme", "class_name": "Common", "pro_rata_type": "standard",
			 "exercise_type": "full"},
			{"holder_name": "Bob", "class_name": "Note", "investment_amount": 1000}
		]
	}`

	var round Round
	require.NoError(t, json.Unmarshal([]byte(data), &round))

	assert.Equal(t, CalcConvertible, round.CalculationType)
	assert.Equal(t, PreMoney, round.ValuationBasis)
	assert.Equal(t, "8000000", round.Valuation.Decimal.String())
	require.Len(t, round.Instruments, 3)

	note, ok := round.Instruments[0].Terms.(Convertible)
	require.True(t, ok)
	assert.Equal(t, "50000", note.InvestmentAmount.Decimal.String())
	assert.Equal(t, NewDate(2024, time.January, 1), note.PaymentDate)
	assert.Equal(t, InterestSimple, note.InterestType)

	assert.Equal(t, KindAllocation, round.Instruments[1].Kind())

	// Only investment_amount present, but the round decides the kind.
	assert.Equal(t, KindConvertible, round.Instruments[2].Kind())
}

func TestDecodeInstrumentForeignField(t *testing.T) {
	data := `{"name":"Seed","round_date":"2024-01-01","calculation_type":"fixed_shares",
		"instruments":[{"holder_name":"A","class_name":"Common","initial_quantity":10,"discount_rate":0.2}]}`

	var round Round
	err := json.Unmarshal([]byte(data), &round)
	require.ErrorIs(t, err, ErrForeignField)
	assert.Contains(t, err.Error(), "instruments[0]")
	assert.Contains(t, err.Error(), "discount_rate")
}

func TestDecodeInstrumentAllocationRejectsGrantFields(t *testing.T) {
	_, err := DecodeInstrument([]byte(`{"holder_name":"A","class_name":"C","pro_rata_type":"super","pro_rata_rights":"super"}`), CalcFixedShares)
	require.ErrorIs(t, err, ErrForeignField)
}

func TestDecodeInstrumentNullAndUnknownKeys(t *testing.T) {
	inst, err := DecodeInstrument([]byte(`{"holder_name":"A","class_name":"C","initial_quantity":5,"discount_rate":null,"note":"imported"}`), CalcFixedShares)
	require.NoError(t, err)
	fixed := inst.Terms.(FixedShares)
	assert.Equal(t, "5", fixed.InitialQuantity.Decimal.String())
}

func TestDecodeInstrumentBadValue(t *testing.T) {
	_, err := DecodeInstrument([]byte(`{"holder_name":"A","class_name":"C","initial_quantity":"lots"}`), CalcFixedShares)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial_quantity")
}

func TestInstrumentUnmarshalInfersKind(t *testing.T) {
	tests := []struct {
		name string
		data string
		kind Kind
	}{
		{"fixed shares", `{"holder_name":"A","class_name":"C","initial_quantity":1}`, KindFixedShares},
		{"target percentage", `{"holder_name":"A","class_name":"C","target_percentage":0.1}`, KindTargetPercentage},
		{"valuation based", `{"holder_name":"A","class_name":"C","investment_amount":1}`, KindValuationBased},
		{"convertible", `{"holder_name":"A","class_name":"C","investment_amount":1,"interest_rate":0.1}`, KindConvertible},
		{"safe", `{"holder_name":"A","class_name":"C","investment_amount":1,"valuation_cap":100}`, KindSafe},
		{"allocation", `{"holder_name":"A","class_name":"C","pro_rata_type":"standard"}`, KindAllocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inst Instrument
			require.NoError(t, json.Unmarshal([]byte(tt.data), &inst))
			assert.Equal(t, tt.kind, inst.Kind())
		})
	}

	var inst Instrument
	err := json.Unmarshal([]byte(`{"holder_name":"A","class_name":"C"}`), &inst)
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestDocumentRoundTripPreservesShape(t *testing.T) {
	data := `{"schema_version":"1.0","holders":[{"name":"Acme","group":"Investors"},{"name":"Founder"}],"rounds":[` +
		`{"name":"Seed","round_date":"2023-01-01","calculation_type":"fixed_shares","instruments":[` +
		`{"holder_name":"Founder","class_name":"Common","initial_quantity":8000000},` +
		`{"holder_name":"Acme","class_name":"Common","initial_quantity":2000000,"pro_rata_rights":"super","pro_rata_percentage":0.2}]},` +
		`{"name":"Series A","round_date":"2024-01-01","calculation_type":"valuation_based","valuation_basis":"pre_money","valuation":20000000,"instruments":[` +
		`{"holder_name":"Acme","class_name":"Common","pro_rata_type":"super","pro_rata_percentage":0.2,"exercise_type":"partial","partial_exercise_percentage":0.1}]}]}`

	var doc Document
	require.NoError(t, json.Unmarshal([]byte(data), &doc))

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, data, string(out))
}

func TestDocumentMarshalEmptyCollections(t *testing.T) {
	b, err := json.Marshal(Document{SchemaVersion: SchemaVersion})
	require.NoError(t, err)
	assert.Equal(t, `{"schema_version":"1.0","holders":[],"rounds":[]}`, string(b))

	b, err = json.Marshal(Round{Name: "Empty", CalculationType: CalcSafe})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Empty","calculation_type":"safe","instruments":[]}`, string(b))
}
