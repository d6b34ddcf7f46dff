// Package llm provides a provider-agnostic completion client with retry,
// fallback and endpoint health tracking. Pipeline components never name a
// concrete model; they request a capability (writing, judging, extraction)
// and the registry resolves it to configured endpoints.
package llm

// Capability is a semantic capability used to select a model.
type Capability string

const (
	// CapabilityWriting is for long-form article generation and revision.
	CapabilityWriting Capability = "writing"

	// CapabilityJudging is for quality scoring of generated content.
	CapabilityJudging Capability = "judging"

	// CapabilityExtraction is for structured data extraction (gap-fill).
	CapabilityExtraction Capability = "extraction"

	// CapabilityFast is for quick, low-stakes calls.
	CapabilityFast Capability = "fast"
)

// IsValid reports whether the capability is one of the known set.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityWriting, CapabilityJudging, CapabilityExtraction, CapabilityFast:
		return true
	}
	return false
}

// String returns the string form of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, empty for unknown values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
