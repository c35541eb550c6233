package predictor

import (
	"encoding/json"
	"math"
	"strconv"

	"heating_analytics/internal/model"
)

// BucketModel is a learned consumption table keyed by integer temperature
// bucket and wind regime. The same structure backs the global correlation
// model, the per-unit correlation models, and the aux reduction models.
type BucketModel struct {
	// Data maps tempKey -> windBucket -> kWh per hour.
	Data map[string]map[model.WindBucket]float64 `json:"data"`
	// Counts tracks observations per cell, for confidence reporting.
	Counts map[string]map[model.WindBucket]int `json:"counts,omitempty"`
}

// NewBucketModel returns an empty model.
func NewBucketModel() *BucketModel {
	return &BucketModel{
		Data:   make(map[string]map[model.WindBucket]float64),
		Counts: make(map[string]map[model.WindBucket]int),
	}
}

// ensure initializes nil maps after JSON decoding of sparse snapshots.
func (m *BucketModel) ensure() {
	if m.Data == nil {
		m.Data = make(map[string]map[model.WindBucket]float64)
	}
	if m.Counts == nil {
		m.Counts = make(map[string]map[model.WindBucket]int)
	}
}

// Value returns the cell value and whether it exists.
func (m *BucketModel) Value(k model.BucketKey) (float64, bool) {
	buckets, ok := m.Data[k.TempKey]
	if !ok {
		return 0, false
	}
	v, ok := buckets[k.Wind]
	return v, ok
}

// Set writes a cell directly.
func (m *BucketModel) Set(k model.BucketKey, v float64) {
	m.ensure()
	buckets, ok := m.Data[k.TempKey]
	if !ok {
		buckets = make(map[model.WindBucket]float64)
		m.Data[k.TempKey] = buckets
	}
	buckets[k.Wind] = v
}

// Count returns the observation count for a cell.
func (m *BucketModel) Count(k model.BucketKey) int {
	if counts, ok := m.Counts[k.TempKey]; ok {
		return counts[k.Wind]
	}
	return 0
}

// IncrementCount bumps the observation count for a cell.
func (m *BucketModel) IncrementCount(k model.BucketKey) {
	m.ensure()
	counts, ok := m.Counts[k.TempKey]
	if !ok {
		counts = make(map[model.WindBucket]int)
		m.Counts[k.TempKey] = counts
	}
	counts[k.Wind]++
}

// Observe folds an observation into a cell with an exponential moving
// average and rounds to the given precision. An empty cell seeds directly
// from the observation. Returns the stored value.
func (m *BucketModel) Observe(k model.BucketKey, obs, rate float64, decimals int) float64 {
	old, ok := m.Value(k)
	var v float64
	if !ok {
		v = obs
	} else {
		v = old + rate*(obs-old)
	}
	v = model.RoundTo(v, decimals)
	m.Set(k, v)
	m.IncrementCount(k)
	return v
}

// Delete removes a whole temperature row (used when cleaning stale units).
func (m *BucketModel) Delete(tempKey string) {
	delete(m.Data, tempKey)
	delete(m.Counts, tempKey)
}

// Empty reports whether the model has no populated cells.
func (m *BucketModel) Empty() bool {
	for _, buckets := range m.Data {
		if len(buckets) > 0 {
			return false
		}
	}
	return true
}

// resolveBucket picks the best available wind bucket for extrapolation,
// preventing recursion loops: requested, then normal, high, extreme.
func resolveBucket(buckets map[model.WindBucket]float64, requested model.WindBucket) (model.WindBucket, bool) {
	if _, ok := buckets[requested]; ok {
		return requested, true
	}
	for _, wb := range []model.WindBucket{model.WindNormal, model.WindHigh, model.WindExtreme} {
		if _, ok := buckets[wb]; ok {
			return wb, true
		}
	}
	return "", false
}

// Predict retrieves a value with regime-aware fallback.
//
// Exact cell hits return directly in every regime. In the mild regime
// (|balancePoint-actualTemp| <= 4) the lookup then tries the temp±1
// neighbor average in the same wind bucket, then falls back across wind
// buckets at the same temperature. The cold regime skips both and goes
// straight to thermodynamic extrapolation: the nearest populated
// temperature key supplies a value which is scaled by the ratio of
// distances to the balance point, guarded against near-balance-point
// noise sources. Aux models pass scale=false so extrapolated reductions
// are carried over unscaled.
func (m *BucketModel) Predict(tempKey string, wind model.WindBucket, actualTemp, balancePoint float64, scale bool) float64 {
	// Exact match.
	if buckets, ok := m.Data[tempKey]; ok {
		if v, ok := buckets[wind]; ok {
			return v
		}
	}

	deltaTarget := math.Abs(balancePoint - actualTemp)
	coldRegime := deltaTarget > model.ColdRegimeDeltaT

	minSourceDelta := model.MinExtrapolationDeltaT
	if coldRegime {
		minSourceDelta = 1.0
	}

	targetT, err := strconv.Atoi(tempKey)
	if err != nil {
		return 0
	}

	if !coldRegime {
		// Neighbor average: temp±1, same wind bucket.
		var neighbors []float64
		for _, offset := range []int{-1, 1} {
			nKey := strconv.Itoa(targetT + offset)
			if buckets, ok := m.Data[nKey]; ok {
				if v, ok := buckets[wind]; ok {
					neighbors = append(neighbors, v)
				}
			}
		}
		if len(neighbors) > 0 {
			sum := 0.0
			for _, v := range neighbors {
				sum += v
			}
			return sum / float64(len(neighbors))
		}

		// Wind fallback at the same temperature. Calmer buckets are safe
		// substitutes; windier ones are not.
		if buckets, ok := m.Data[tempKey]; ok {
			switch wind {
			case model.WindExtreme:
				if v, ok := buckets[model.WindHigh]; ok {
					return v
				}
				if v, ok := buckets[model.WindNormal]; ok {
					return v
				}
			case model.WindHigh:
				if v, ok := buckets[model.WindNormal]; ok {
					return v
				}
			}
			if v, ok := buckets[model.WindNormal]; ok {
				return v
			}
		}
	}

	// Thermodynamic extrapolation from the nearest populated key.
	bestKey := ""
	minDiff := math.MaxInt32
	hasAnyData := false
	for k, buckets := range m.Data {
		if len(buckets) == 0 {
			continue
		}
		hasAnyData = true
		if k == tempKey {
			continue
		}
		kInt, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		diff := targetT - kInt
		if diff < 0 {
			diff = -diff
		}
		if diff < minDiff {
			minDiff = diff
			bestKey = k
		}
	}

	if !hasAnyData {
		return 0
	}

	if bestKey == "" {
		// Only the requested key holds data; resolve its buckets locally.
		buckets := m.Data[tempKey]
		if wb, ok := resolveBucket(buckets, wind); ok {
			return buckets[wb]
		}
		return 0
	}

	neighborBuckets := m.Data[bestKey]
	effectiveBucket, ok := resolveBucket(neighborBuckets, wind)
	if !ok {
		return 0
	}

	bestT, _ := strconv.Atoi(bestKey)
	neighborVal := m.Predict(bestKey, effectiveBucket, float64(bestT), balancePoint, scale)
	if neighborVal <= 0.001 {
		return 0
	}
	if !scale {
		return neighborVal
	}

	deltaSource := math.Abs(balancePoint - float64(bestT))
	// A source sitting at the balance point is idle-load noise; scaling it
	// by a large ratio would fabricate consumption.
	if deltaSource < minSourceDelta {
		return neighborVal
	}

	return model.RoundTo(neighborVal*(deltaTarget/deltaSource), 3)
}

func (m *BucketModel) clone() *BucketModel {
	out := NewBucketModel()
	for k, buckets := range m.Data {
		for wb, v := range buckets {
			out.Set(model.BucketKey{TempKey: k, Wind: wb}, v)
		}
	}
	for k, counts := range m.Counts {
		for wb, c := range counts {
			dst, ok := out.Counts[k]
			if !ok {
				dst = make(map[model.WindBucket]int)
				out.Counts[k] = dst
			}
			dst[wb] = c
		}
	}
	return out
}

// Clone returns a deep copy, used when snapshotting under lock.
func (m *BucketModel) Clone() *BucketModel {
	return m.clone()
}

// Save serializes the model to JSON.
func (m *BucketModel) Save() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// LoadBucketModel deserializes a model from JSON.
func LoadBucketModel(data []byte) (*BucketModel, error) {
	var m BucketModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	m.ensure()
	return &m, nil
}
