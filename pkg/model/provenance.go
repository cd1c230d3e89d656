package model

// Provenance records how a table generation's sales were produced.
type Provenance string

const (
	// ProvenanceAggregated marks sales aggregated from real transactions.
	ProvenanceAggregated Provenance = "aggregated"
	// ProvenanceSynthetic marks fabricated sales over a real catalog.
	ProvenanceSynthetic Provenance = "synthetic"
	// ProvenanceSyntheticDemo marks fabricated sales over the built-in demo catalog.
	ProvenanceSyntheticDemo Provenance = "synthetic_demo"
)

// IsSynthetic reports whether the data was generated rather than aggregated.
func (p Provenance) IsSynthetic() bool {
	return p == ProvenanceSynthetic || p == ProvenanceSyntheticDemo
}

// Valid reports whether p is a known provenance.
func (p Provenance) Valid() bool {
	switch p {
	case ProvenanceAggregated, ProvenanceSynthetic, ProvenanceSyntheticDemo:
		return true
	}
	return false
}
