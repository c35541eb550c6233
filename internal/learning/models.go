package learning

import (
	"heating_analytics/internal/model"
	"heating_analytics/internal/predictor"
)

// Models bundles every learned structure the engine mutates. One instance
// is owned by the analytics engine and serialized wholesale into the
// snapshot.
type Models struct {
	// Correlation is the global base consumption model.
	Correlation *predictor.BucketModel `json:"correlation"`
	// UnitCorrelation holds per-unit base models.
	UnitCorrelation map[string]*predictor.BucketModel `json:"unit_correlation"`
	// AuxGlobal is the learned global aux reduction model.
	AuxGlobal *predictor.BucketModel `json:"aux_global"`
	// UnitAux holds per-unit aux reduction models.
	UnitAux map[string]*predictor.BucketModel `json:"unit_aux"`

	// Cold-start buffers. Solar buffers are keyed by temperature only
	// because solar coefficients ignore wind.
	GlobalBuffer     *predictor.SeedBuffer            `json:"global_buffer"`
	UnitBuffers      map[string]*predictor.SeedBuffer `json:"unit_buffers"`
	UnitAuxBuffers   map[string]*predictor.SeedBuffer `json:"unit_aux_buffers"`
	UnitSolarBuffers map[string]map[string][]float64  `json:"unit_solar_buffers"`
}

// NewModels returns an empty learned state.
func NewModels() *Models {
	return &Models{
		Correlation:      predictor.NewBucketModel(),
		UnitCorrelation:  make(map[string]*predictor.BucketModel),
		AuxGlobal:        predictor.NewBucketModel(),
		UnitAux:          make(map[string]*predictor.BucketModel),
		GlobalBuffer:     predictor.NewSeedBuffer(),
		UnitBuffers:      make(map[string]*predictor.SeedBuffer),
		UnitAuxBuffers:   make(map[string]*predictor.SeedBuffer),
		UnitSolarBuffers: make(map[string]map[string][]float64),
	}
}

// Normalize repairs nil maps after a sparse snapshot decode.
func (m *Models) Normalize() {
	if m.Correlation == nil {
		m.Correlation = predictor.NewBucketModel()
	}
	if m.UnitCorrelation == nil {
		m.UnitCorrelation = make(map[string]*predictor.BucketModel)
	}
	if m.AuxGlobal == nil {
		m.AuxGlobal = predictor.NewBucketModel()
	}
	if m.UnitAux == nil {
		m.UnitAux = make(map[string]*predictor.BucketModel)
	}
	if m.GlobalBuffer == nil {
		m.GlobalBuffer = predictor.NewSeedBuffer()
	}
	if m.UnitBuffers == nil {
		m.UnitBuffers = make(map[string]*predictor.SeedBuffer)
	}
	if m.UnitAuxBuffers == nil {
		m.UnitAuxBuffers = make(map[string]*predictor.SeedBuffer)
	}
	if m.UnitSolarBuffers == nil {
		m.UnitSolarBuffers = make(map[string]map[string][]float64)
	}
}

// UnitModel returns the base model for a unit, creating it on first use.
func (m *Models) UnitModel(unit string) *predictor.BucketModel {
	bm, ok := m.UnitCorrelation[unit]
	if !ok {
		bm = predictor.NewBucketModel()
		m.UnitCorrelation[unit] = bm
	}
	return bm
}

// UnitAuxModel returns the aux model for a unit, creating it on first use.
func (m *Models) UnitAuxModel(unit string) *predictor.BucketModel {
	bm, ok := m.UnitAux[unit]
	if !ok {
		bm = predictor.NewBucketModel()
		m.UnitAux[unit] = bm
	}
	return bm
}

func (m *Models) unitBuffer(unit string) *predictor.SeedBuffer {
	b, ok := m.UnitBuffers[unit]
	if !ok {
		b = predictor.NewSeedBuffer()
		m.UnitBuffers[unit] = b
	}
	return b
}

func (m *Models) unitAuxBuffer(unit string) *predictor.SeedBuffer {
	b, ok := m.UnitAuxBuffers[unit]
	if !ok {
		b = predictor.NewSeedBuffer()
		m.UnitAuxBuffers[unit] = b
	}
	return b
}

// Clone returns a deep copy safe to serialize while the engine keeps
// mutating the original.
func (m *Models) Clone() *Models {
	out := NewModels()
	out.Correlation = m.Correlation.Clone()
	out.AuxGlobal = m.AuxGlobal.Clone()
	for unit, bm := range m.UnitCorrelation {
		out.UnitCorrelation[unit] = bm.Clone()
	}
	for unit, bm := range m.UnitAux {
		out.UnitAux[unit] = bm.Clone()
	}
	out.GlobalBuffer = m.GlobalBuffer.Clone()
	for unit, b := range m.UnitBuffers {
		out.UnitBuffers[unit] = b.Clone()
	}
	for unit, b := range m.UnitAuxBuffers {
		out.UnitAuxBuffers[unit] = b.Clone()
	}
	for unit, byTemp := range m.UnitSolarBuffers {
		cp := make(map[string][]float64, len(byTemp))
		for tempKey, samples := range byTemp {
			cp[tempKey] = append([]float64(nil), samples...)
		}
		out.UnitSolarBuffers[unit] = cp
	}
	return out
}

// RemoveUnit drops every learned structure for a unit no longer configured.
func (m *Models) RemoveUnit(unit string) {
	delete(m.UnitCorrelation, unit)
	delete(m.UnitAux, unit)
	delete(m.UnitBuffers, unit)
	delete(m.UnitAuxBuffers, unit)
	delete(m.UnitSolarBuffers, unit)
}

// UnitBaseValue returns the exact learned base cell for a unit, if any.
func (m *Models) UnitBaseValue(unit string, k model.BucketKey) (float64, bool) {
	bm, ok := m.UnitCorrelation[unit]
	if !ok {
		return 0, false
	}
	return bm.Value(k)
}
