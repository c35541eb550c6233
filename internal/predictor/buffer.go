package predictor

import "heating_analytics/internal/model"

// SeedBuffer collects the first observations for an empty model cell.
// Once a cell has BufferThreshold samples their mean seeds the model and
// the buffer is cleared, so one noisy first hour cannot anchor the EMA.
type SeedBuffer struct {
	Samples map[string]map[model.WindBucket][]float64 `json:"samples"`
}

// NewSeedBuffer returns an empty buffer.
func NewSeedBuffer() *SeedBuffer {
	return &SeedBuffer{Samples: make(map[string]map[model.WindBucket][]float64)}
}

func (b *SeedBuffer) ensure() {
	if b.Samples == nil {
		b.Samples = make(map[string]map[model.WindBucket][]float64)
	}
}

// Clone returns a deep copy for snapshotting.
func (b *SeedBuffer) Clone() *SeedBuffer {
	out := NewSeedBuffer()
	for tempKey, buckets := range b.Samples {
		cp := make(map[model.WindBucket][]float64, len(buckets))
		for wind, samples := range buckets {
			cp[wind] = append([]float64(nil), samples...)
		}
		out.Samples[tempKey] = cp
	}
	return out
}

// Add appends an observation. When the cell reaches the threshold the
// buffer empties and Add returns the mean with seeded=true.
func (b *SeedBuffer) Add(k model.BucketKey, obs float64, threshold int) (mean float64, seeded bool) {
	b.ensure()
	buckets, ok := b.Samples[k.TempKey]
	if !ok {
		buckets = make(map[model.WindBucket][]float64)
		b.Samples[k.TempKey] = buckets
	}
	samples := append(buckets[k.Wind], obs)
	if len(samples) < threshold {
		buckets[k.Wind] = samples
		return 0, false
	}

	sum := 0.0
	for _, v := range samples {
		sum += v
	}
	delete(buckets, k.Wind)
	if len(buckets) == 0 {
		delete(b.Samples, k.TempKey)
	}
	return sum / float64(len(samples)), true
}

// Len returns the number of buffered samples for a cell.
func (b *SeedBuffer) Len(k model.BucketKey) int {
	if buckets, ok := b.Samples[k.TempKey]; ok {
		return len(buckets[k.Wind])
	}
	return 0
}
