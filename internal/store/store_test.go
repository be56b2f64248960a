package store

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/captable/internal/lineage"
	"github.com/roach88/captable/internal/model"
	"github.com/roach88/captable/internal/testutil"
)

func newAcmeStore(t *testing.T) *Store {
	t.Helper()
	return New(testutil.AcmeDocument())
}

// requireIndexCurrent asserts the grant index matches a fresh scan.
func requireIndexCurrent(t *testing.T, s *Store) {
	t.Helper()
	require.True(t, s.Grants().Current(s.doc.Rounds), "grant index must equal a fresh scan")
}

// =============================================================================
// Construction
// =============================================================================

func TestNewCopiesDocument(t *testing.T) {
	doc := testutil.AcmeDocument()
	doc.SchemaVersion = ""
	s := New(doc)

	doc.Holders[0].Name = "Changed"
	assert.Equal(t, "Founder", s.Holders()[0].Name)
	assert.Equal(t, model.SchemaVersion, s.Snapshot().SchemaVersion)

	snap := s.Snapshot()
	snap.Rounds[0].Instruments[0].HolderName = "Changed"
	inst, err := s.Instrument(0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Founder", inst.HolderName)
}

// =============================================================================
// Holders
// =============================================================================

func TestAddHolder(t *testing.T) {
	s := newAcmeStore(t)

	require.NoError(t, s.AddHolder(model.Holder{Name: "Gamma", Group: "Investors"}))
	assert.Len(t, s.Holders(), 4)

	assert.ErrorIs(t, s.AddHolder(model.Holder{Name: "Gamma"}), ErrDuplicateHolder)
	assert.ErrorIs(t, s.AddHolder(model.Holder{Name: "  "}), ErrEmptyHolderName)
}

func TestRenameHolderCascades(t *testing.T) {
	s := newAcmeStore(t)
	_, err := s.AddInstrument(1, model.NewAllocation("Acme", "Common", model.ProRataSuper, testutil.D("0.2")))
	require.NoError(t, err)

	n, err := s.RenameHolder("Acme", "Acme Capital")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, r := range s.Rounds() {
		for _, inst := range r.Instruments {
			assert.NotEqual(t, "Acme", inst.HolderName)
		}
	}
	snap := s.Snapshot()
	assert.Equal(t, "Acme Capital", snap.Rounds[0].Instruments[1].HolderName)
	assert.Equal(t, "Acme Capital", snap.Rounds[1].Instruments[1].HolderName)
	assert.Len(t, snap.Rounds[0].Instruments, 2, "no duplication")
	assert.Len(t, snap.Holders, 3)

	origin, ok := s.Origin(1, "Acme Capital")
	require.True(t, ok, "lineage survives the rename")
	assert.Equal(t, lineage.Location{Round: 0, Instrument: 1}, origin.Location)
	requireIndexCurrent(t, s)
}

func TestRenameHolderErrors(t *testing.T) {
	s := newAcmeStore(t)

	_, err := s.RenameHolder("Nobody", "X")
	assert.ErrorIs(t, err, ErrHolderNotFound)

	_, err = s.RenameHolder("Acme", "Founder")
	assert.ErrorIs(t, err, ErrDuplicateHolder)

	_, err = s.RenameHolder("Acme", "")
	assert.ErrorIs(t, err, ErrEmptyHolderName)

	assert.Equal(t, "Acme", s.Holders()[1].Name, "failed rename leaves the store unchanged")
}

func TestUpdateHolderRenames(t *testing.T) {
	s := newAcmeStore(t)

	require.NoError(t, s.UpdateHolder("Founder", model.Holder{Name: "Jane", Group: "Founders", Description: "CEO"}))

	assert.Equal(t, model.Holder{Name: "Jane", Group: "Founders", Description: "CEO"}, s.Holders()[0])
	inst, _ := s.Instrument(0, 0)
	assert.Equal(t, "Jane", inst.HolderName)

	assert.ErrorIs(t, s.UpdateHolder("Nobody", model.Holder{Name: "X"}), ErrHolderNotFound)
}

func TestDeleteHolder(t *testing.T) {
	s := newAcmeStore(t)

	assert.ErrorIs(t, s.DeleteHolder("Acme"), ErrHolderInUse)
	assert.ErrorIs(t, s.DeleteHolder("Nobody"), ErrHolderNotFound)

	require.NoError(t, s.AddHolder(model.Holder{Name: "Idle"}))
	require.NoError(t, s.DeleteHolder("Idle"))
	assert.Len(t, s.Holders(), 3)
}

func TestGroups(t *testing.T) {
	s := newAcmeStore(t)
	assert.Equal(t, []string{"Founders", "Investors"}, s.Groups())

	n, err := s.RenameGroup("Investors", "VCs")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"Founders", "VCs"}, s.Groups())

	_, err = s.RenameGroup("Investors", "X")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

// =============================================================================
// Rounds
// =============================================================================

func TestAddRound(t *testing.T) {
	s := newAcmeStore(t)
	r := testutil.CompleteRound("Series B", model.CalcSafe, testutil.CompleteInstrument(model.CalcSafe, "Beta Fund", "SAFE"))

	idx, err := s.AddRound(r)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 3, s.RoundCount())

	bad := testutil.CompleteRound("Bad", model.CalcSafe, testutil.CompleteInstrument(model.CalcSafe, "Stranger", "SAFE"))
	_, err = s.AddRound(bad)
	assert.ErrorIs(t, err, ErrUnknownHolder)
	assert.Equal(t, 3, s.RoundCount())
}

func TestUpdateRoundCalculationTypeChange(t *testing.T) {
	s := newAcmeStore(t)
	r, err := s.Round(1)
	require.NoError(t, err)

	r.CalculationType = model.CalcFixedShares
	require.NoError(t, s.UpdateRound(1, r))

	got, _ := s.Round(1)
	assert.Empty(t, got.Instruments)
	assert.False(t, got.Valuation.Valid)
	assert.Empty(t, got.ValuationBasis)
}

func TestUpdateRoundSameType(t *testing.T) {
	s := newAcmeStore(t)
	r, _ := s.Round(0)
	r.Name = "Pre-seed"

	require.NoError(t, s.UpdateRound(0, r))
	got, _ := s.Round(0)
	assert.Equal(t, "Pre-seed", got.Name)
	assert.Len(t, got.Instruments, 2)

	assert.ErrorIs(t, s.UpdateRound(9, r), ErrRoundNotFound)
}

func TestDeleteRound(t *testing.T) {
	s := newAcmeStore(t)

	removed, err := s.DeleteRound(0)
	require.NoError(t, err)
	assert.Equal(t, "Seed", removed.Name)
	assert.Equal(t, 1, s.RoundCount())
	requireIndexCurrent(t, s)

	_, err = s.DeleteRound(5)
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func TestReplaceRoundsIsAtomic(t *testing.T) {
	s := newAcmeStore(t)
	rounds := s.Rounds()
	rounds[0].Name = "Changed"
	rounds[1].Instruments = append(rounds[1].Instruments, testutil.CompleteInstrument(model.CalcValuationBased, "Stranger", "X"))

	err := s.ReplaceRounds(rounds)
	require.ErrorIs(t, err, ErrUnknownHolder)
	assert.Contains(t, err.Error(), "rounds[1]")

	r, _ := s.Round(0)
	assert.Equal(t, "Seed", r.Name)
}

// =============================================================================
// Instruments
// =============================================================================

func TestAddInstrumentChecks(t *testing.T) {
	s := newAcmeStore(t)

	_, err := s.AddInstrument(0, testutil.CompleteInstrument(model.CalcFixedShares, "Stranger", "Common"))
	assert.ErrorIs(t, err, ErrUnknownHolder)

	_, err = s.AddInstrument(0, testutil.CompleteInstrument(model.CalcSafe, "Acme", "SAFE"))
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, err = s.AddInstrument(0, model.Instrument{HolderName: "Acme"})
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, err = s.AddInstrument(4, testutil.CompleteInstrument(model.CalcFixedShares, "Acme", "Common"))
	assert.ErrorIs(t, err, ErrRoundNotFound)

	idx, err := s.AddInstrument(1, model.NewAllocation("Acme", "Common", model.ProRataSuper, testutil.D("0.2")))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	_, err = s.AddInstrument(1, model.NewAllocation("Acme", "Preferred", model.ProRataStandard, decimal.NullDecimal{}))
	assert.ErrorIs(t, err, ErrDuplicateAllocation)
}

func TestAddInstrumentAllowsDraftWithoutHolder(t *testing.T) {
	s := newAcmeStore(t)
	inst, err := model.NewInstrument(model.CalcFixedShares)
	require.NoError(t, err)

	_, err = s.AddInstrument(0, inst)
	assert.NoError(t, err)
}

func TestAddInstrumentNormalizes(t *testing.T) {
	s := New(model.Document{Holders: []model.Holder{{Name: "A"}}, Rounds: []model.Round{
		testutil.CompleteRound("S", model.CalcSafe),
	}})
	inst := testutil.WithRights(testutil.CompleteInstrument(model.CalcSafe, "A", "SAFE"), model.ProRataStandard, "")

	idx, err := s.AddInstrument(0, inst)
	require.NoError(t, err)
	got, _ := s.Instrument(0, idx)
	assert.False(t, got.HasRights(), "SAFE without its own cap cannot carry rights")
}

func TestUpdateInstrument(t *testing.T) {
	s := newAcmeStore(t)
	inst, _ := s.Instrument(0, 1)
	inst = testutil.WithRights(inst, model.ProRataSuper, "0.3")

	require.NoError(t, s.UpdateInstrument(0, 1, inst))
	origin, ok := s.Origin(1, "Acme")
	require.True(t, ok)
	assert.Equal(t, "0.3", origin.Grant().ProRataPercentage.Decimal.String())

	assert.ErrorIs(t, s.UpdateInstrument(0, 9, inst), ErrInstrumentNotFound)
}

func TestUpdateInstrumentKeepsOwnAllocation(t *testing.T) {
	s := newAcmeStore(t)
	idx, err := s.AddInstrument(1, model.NewAllocation("Acme", "Common", model.ProRataSuper, testutil.D("0.2")))
	require.NoError(t, err)

	alloc, _ := s.Instrument(1, idx)
	a, _ := alloc.Allocation()
	a.ExerciseType = model.ExercisePartial
	a.PartialExerciseAmount = testutil.D("100")
	assert.NoError(t, s.UpdateInstrument(1, idx, alloc.WithAllocation(a)))
}

func TestDeleteInstrument(t *testing.T) {
	s := newAcmeStore(t)

	removed, err := s.DeleteInstrument(0, 0)
	require.NoError(t, err)
	assert.Equal(t, "Founder", removed.HolderName)

	origin, ok := s.Origin(1, "Acme")
	require.True(t, ok)
	assert.Equal(t, lineage.Location{Round: 0, Instrument: 0}, origin.Location, "grant moved up one position")

	_, err = s.DeleteInstrument(0, 5)
	assert.ErrorIs(t, err, ErrInstrumentNotFound)
}

// =============================================================================
// Grant index
// =============================================================================

func TestGrantIndexStaysCurrent(t *testing.T) {
	s := newAcmeStore(t)
	steps := []func() error{
		func() error {
			_, err := s.AddInstrument(0, testutil.WithRights(testutil.CompleteInstrument(model.CalcFixedShares, "Beta Fund", "Common"), model.ProRataStandard, ""))
			return err
		},
		func() error {
			_, err := s.DeleteInstrument(0, 0)
			return err
		},
		func() error {
			_, err := s.AddRound(testutil.CompleteRound("Pre", model.CalcFixedShares,
				testutil.WithRights(testutil.CompleteInstrument(model.CalcFixedShares, "Founder", "Common"), model.ProRataStandard, "")))
			return err
		},
		func() error {
			_, err := s.RenameHolder("Founder", "Jane")
			return err
		},
		func() error {
			inst, _ := s.Instrument(0, 0)
			return s.UpdateInstrument(0, 0, inst.WithGrant(model.Grant{}))
		},
		func() error {
			_, err := s.DeleteRound(0)
			return err
		},
		func() error { return s.ReplaceRounds(s.Rounds()) },
	}

	for i, step := range steps {
		require.NoError(t, step(), "step %d", i)
		requireIndexCurrent(t, s)
	}
}
