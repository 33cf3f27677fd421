package gamification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultThresholds(t *testing.T) {
	tiers := DefaultThresholds().Tiers()
	require.Len(t, tiers, 3)
	assert.Equal(t, BadgeNovice, tiers[0].Type)
	assert.Equal(t, int64(10), tiers[0].Required)
	assert.Equal(t, BadgeExplorer, tiers[1].Type)
	assert.Equal(t, int64(50), tiers[1].Required)
	assert.Equal(t, BadgeMaster, tiers[2].Type)
	assert.Equal(t, int64(100), tiers[2].Required)
}

func TestNewThresholds_SortsAndValidates(t *testing.T) {
	th, err := NewThresholds(
		Tier{Type: "gold", Required: 30},
		Tier{Type: "bronze", Required: 1},
		Tier{Type: "silver", Required: 5},
	)
	require.NoError(t, err)
	tiers := th.Tiers()
	assert.Equal(t, BadgeType("bronze"), tiers[0].Type)
	assert.Equal(t, BadgeType("gold"), tiers[2].Type)

	// the copy does not leak internal state
	tiers[0].Required = 999
	tier, ok := th.Lookup("bronze")
	require.True(t, ok)
	assert.Equal(t, int64(1), tier.Required)

	_, err = NewThresholds()
	assert.Error(t, err)
	_, err = NewThresholds(Tier{Type: "x", Required: 0})
	assert.Error(t, err)
	_, err = NewThresholds(Tier{Type: "x", Required: 1}, Tier{Type: "x", Required: 2})
	assert.Error(t, err)

	_, ok = th.Lookup("platinum")
	assert.False(t, ok)
}

func TestUserLocks_ReleasesEntries(t *testing.T) {
	l := newUserLocks()
	unlockA := l.Lock(1)
	unlockB := l.Lock(2)
	assert.Equal(t, 2, l.size())
	unlockA()
	unlockB()
	assert.Equal(t, 0, l.size())
}
