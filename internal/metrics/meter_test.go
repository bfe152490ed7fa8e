package metrics

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeterWeightedMean(t *testing.T) {
	var m Meter
	m.Update(1.0, 2)
	m.Update(4.0, 1)
	m.Update(10.0, 0)

	mean, err := m.Mean()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, mean, 1e-12)
	assert.Equal(t, 3, m.Count())
	assert.Equal(t, 10.0, m.Val)
}

func TestMeterOrderIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	type obs struct {
		v float64
		w int
	}
	updates := make([]obs, 500)
	wantSum, wantCount := 0.0, 0
	for i := range updates {
		updates[i] = obs{v: rng.NormFloat64() * 1e3, w: rng.Intn(300)}
		wantSum += updates[i].v * float64(updates[i].w)
		wantCount += updates[i].w
	}

	var forward, shuffled Meter
	for _, u := range updates {
		forward.Update(u.v, u.w)
	}
	rng.Shuffle(len(updates), func(i, j int) { updates[i], updates[j] = updates[j], updates[i] })
	for _, u := range updates {
		shuffled.Update(u.v, u.w)
	}

	a, err := forward.Mean()
	require.NoError(t, err)
	b, err := shuffled.Mean()
	require.NoError(t, err)
	assert.InDelta(t, wantSum/float64(wantCount), a, 1e-9)
	assert.InDelta(t, a, b, 1e-9)
}

func TestMeterEmptyMean(t *testing.T) {
	var m Meter
	_, err := m.Mean()
	require.ErrorIs(t, err, ErrDivisionUndefined)

	m.Update(3, 0)
	_, err = m.Mean()
	require.ErrorIs(t, err, ErrDivisionUndefined)
	assert.Equal(t, 0.0, m.Avg())
}

func TestMeterNegativeWeightPanics(t *testing.T) {
	var m Meter
	assert.Panics(t, func() { m.Update(1, -1) })
}

func TestMeterReset(t *testing.T) {
	var m Meter
	m.Update(5, 4)
	m.Reset()
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 0.0, m.Sum())
}
