package question

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolsMatchCaseInsensitively(t *testing.T) {
	own, general := Pools("  Go ", "MEDIUM")
	assert.NotEmpty(t, own)
	assert.NotEmpty(t, general)

	for _, e := range All() {
		if e.Topic == "go" && e.Difficulty == "medium" {
			assert.Contains(t, own, e.Text)
		}
	}
}

func TestPoolsUnknownTopicHasOnlyGeneral(t *testing.T) {
	own, general := Pools("cobol", "easy")
	assert.Empty(t, own)
	assert.NotEmpty(t, general)
}

func TestSamplePrefersEarlierPools(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	got, err := Sample(r, 3, []string{"a", "b"}, []string{"c", "d", "e"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.ElementsMatch(t, []string{"a", "b"}, got[:2])
	assert.Contains(t, []string{"c", "d", "e"}, got[2])
}

func TestSampleSkipsDuplicates(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	got, err := Sample(r, 2, []string{"Same", "same "}, []string{"other"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "other")
}

func TestSampleNotEnough(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	_, err := Sample(r, 4, []string{"a"}, []string{"b"})
	require.ErrorIs(t, err, ErrNotEnough)
}

func TestSampleZero(t *testing.T) {
	got, err := Sample(rand.New(rand.NewPCG(7, 8)), 0, []string{"a"})
	require.NoError(t, err)
	assert.Nil(t, got)
}
