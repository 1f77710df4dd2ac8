package mode

// Mode tells the caller which ranking path produced a result.
type Mode string

// Search mode constants.
const (
	// Hybrid means the structured candidates were re-ranked semantically.
	Hybrid Mode = "hybrid"
	// StructuredOnly means no semantic pass ran or it degraded.
	StructuredOnly Mode = "structured_only"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == StructuredOnly
}
