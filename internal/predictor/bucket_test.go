package predictor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"heating_analytics/internal/model"
)

const balancePoint = 17.0

func cell(temp string, wind model.WindBucket) model.BucketKey {
	return model.BucketKey{TempKey: temp, Wind: wind}
}

func TestPredict_ExactMatch(t *testing.T) {
	m := NewBucketModel()
	m.Set(cell("10", model.WindHigh), 4.2)
	assert.InDelta(t, 4.2, m.Predict("10", model.WindHigh, 10.0, balancePoint, true), 0.001)
}

func TestPredict_NeighborAverageBeatsWindFallback(t *testing.T) {
	m := NewBucketModel()
	m.Set(cell("9", model.WindHigh), 8.0)
	m.Set(cell("11", model.WindHigh), 10.0)
	m.Set(cell("10", model.WindNormal), 2.0)

	// Same-wind neighbors average to (8+10)/2 = 9; the calm cell at the
	// requested temperature must not win.
	assert.InDelta(t, 9.0, m.Predict("10", model.WindHigh, 10.0, balancePoint, true), 0.001)
}

func TestPredict_SingleNeighbor(t *testing.T) {
	m := NewBucketModel()
	m.Set(cell("14", model.WindNormal), 3.0)
	assert.InDelta(t, 3.0, m.Predict("15", model.WindNormal, 15.0, balancePoint, true), 0.001)
}

func TestPredict_WindFallbackExtremeToHigh(t *testing.T) {
	m := NewBucketModel()
	m.Set(cell("14", model.WindHigh), 5.5)
	assert.InDelta(t, 5.5, m.Predict("14", model.WindExtreme, 14.0, balancePoint, true), 0.001)
}

func TestPredict_WindFallbackHighToNormal(t *testing.T) {
	m := NewBucketModel()
	m.Set(cell("14", model.WindNormal), 3.1)
	assert.InDelta(t, 3.1, m.Predict("14", model.WindHigh, 14.0, balancePoint, true), 0.001)
}

func TestPredict_ColdRegimeSkipsNeighborAverage(t *testing.T) {
	m := NewBucketModel()
	// Target 0 °C: delta T = 17 > 4, cold regime. The +1 neighbor exists
	// but must be scaled thermodynamically, not averaged as-is.
	m.Set(cell("1", model.WindNormal), 8.0)

	// Ratio = 17 / 16 = 1.0625; 8.0 * 1.0625 = 8.5.
	assert.InDelta(t, 8.5, m.Predict("0", model.WindNormal, 0.0, balancePoint, true), 0.001)
}

func TestPredict_ExtrapolationGuardNearBalancePoint(t *testing.T) {
	m := NewBucketModel()
	// Source at 16.8 °C rounds to key 17, delta T source = 0 < guard, so
	// the value carries over unscaled instead of exploding.
	m.Set(cell("17", model.WindNormal), 0.2)
	assert.InDelta(t, 0.2, m.Predict("5", model.WindNormal, 5.0, balancePoint, true), 0.001)
}

func TestPredict_AuxModelNeverScales(t *testing.T) {
	m := NewBucketModel()
	m.Set(cell("10", model.WindNormal), 2.0)
	// With scaling off, the 0 °C request returns the 10 °C value as-is.
	assert.InDelta(t, 2.0, m.Predict("0", model.WindNormal, 0.0, balancePoint, false), 0.001)
}

func TestPredict_EmptyModelReturnsZero(t *testing.T) {
	m := NewBucketModel()
	assert.InDelta(t, 0.0, m.Predict("10", model.WindNormal, 10.0, balancePoint, true), 0.001)
}

func TestPredict_NoiseSourceReturnsZero(t *testing.T) {
	m := NewBucketModel()
	// Extrapolating from a near-zero source yields 0, not a scaled sliver.
	m.Set(cell("5", model.WindNormal), 0.0005)
	assert.InDelta(t, 0.0, m.Predict("0", model.WindNormal, 0.0, balancePoint, true), 0.001)
}

func TestObserve_SeedsEmptyCell(t *testing.T) {
	m := NewBucketModel()
	v := m.Observe(cell("10", model.WindNormal), 4.0, 0.01, 5)
	assert.InDelta(t, 4.0, v, 0.0001)
	assert.Equal(t, 1, m.Count(cell("10", model.WindNormal)))
}

func TestObserve_EMA(t *testing.T) {
	m := NewBucketModel()
	k := cell("10", model.WindNormal)
	m.Set(k, 4.0)
	// 4.0 + 0.01 * (6.0 - 4.0) = 4.02
	v := m.Observe(k, 6.0, 0.01, 5)
	assert.InDelta(t, 4.02, v, 0.00001)
}

func TestObserve_RoundsToPrecision(t *testing.T) {
	m := NewBucketModel()
	k := cell("10", model.WindNormal)
	m.Set(k, 1.0)
	// 1.0 + 0.01 * (1.111111 - 1.0) = 1.00111111 -> 1.001 at 3 decimals
	v := m.Observe(k, 1.111111, 0.01, 3)
	assert.InDelta(t, 1.001, v, 0.000001)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := NewBucketModel()
	m.Set(cell("-3", model.WindExtreme), 7.345)
	m.IncrementCount(cell("-3", model.WindExtreme))

	data, err := m.Save()
	assert.NoError(t, err)

	loaded, err := LoadBucketModel(data)
	assert.NoError(t, err)
	v, ok := loaded.Value(cell("-3", model.WindExtreme))
	assert.True(t, ok)
	assert.InDelta(t, 7.345, v, 0.0001)
	assert.Equal(t, 1, loaded.Count(cell("-3", model.WindExtreme)))
}

func TestSeedBuffer_SeedsAtThreshold(t *testing.T) {
	b := NewSeedBuffer()
	k := cell("10", model.WindNormal)

	for _, v := range []float64{4.0, 5.0, 6.0} {
		_, seeded := b.Add(k, v, model.BufferThreshold)
		assert.False(t, seeded)
	}
	assert.Equal(t, 3, b.Len(k))

	// Fourth sample seeds with the mean: (4+5+6+7)/4 = 5.5.
	mean, seeded := b.Add(k, 7.0, model.BufferThreshold)
	assert.True(t, seeded)
	assert.InDelta(t, 5.5, mean, 0.0001)
	assert.Equal(t, 0, b.Len(k), "buffer clears after seeding")
}
