package lineage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/captable/internal/model"
	"github.com/roach88/captable/internal/testutil"
)

func TestGrantIndexAgreesWithScan(t *testing.T) {
	rounds := threeRounds()
	ix := BuildGrantIndex(rounds)

	for upto := 0; upto <= len(rounds); upto++ {
		for _, holder := range []string{"Acme", "Founder", "Beta Fund"} {
			loc, ok := ix.Latest(holder, upto)
			origin, found := FindOriginGrant(rounds, upto, holder)
			require.Equal(t, found, ok, "%s upto %d", holder, upto)
			if found {
				assert.Equal(t, origin.Location, loc)
			}
		}
	}
	assert.Equal(t, 1, ix.Holders())
}

func TestGrantIndexInvalidation(t *testing.T) {
	rounds := threeRounds()
	ix := BuildGrantIndex(rounds)
	require.True(t, ix.Current(rounds))

	rounds[2].Instruments = append(rounds[2].Instruments,
		grant(model.CalcValuationBased, "Beta Fund", "Preferred A", model.ProRataStandard, ""))
	assert.False(t, ix.Current(rounds), "mutation without rebuild leaves the index stale")

	ix.Invalidate()
	assert.False(t, ix.Valid())
	_, ok := ix.Latest("Acme", 3)
	assert.False(t, ok, "stale index answers nothing")

	ix.Rebuild(rounds)
	assert.True(t, ix.Current(rounds))
	loc, ok := ix.Latest("Beta Fund", 3)
	require.True(t, ok)
	assert.Equal(t, Location{Round: 2, Instrument: 1}, loc)
}

func TestGrantIndexNormalizesNames(t *testing.T) {
	rounds := []model.Round{
		testutil.CompleteRound("Seed", model.CalcFixedShares,
			grant(model.CalcFixedShares, "Zoe\u0308", "Common", model.ProRataStandard, "")),
	}
	ix := BuildGrantIndex(rounds)

	_, ok := ix.Latest("Zo\u00eb", 1)
	assert.True(t, ok)
}
