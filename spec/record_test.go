package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFilled(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"real value", "435 HP", true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"sentinel not specified", "Not specified", false},
		{"sentinel case insensitive", "NOT SPECIFIED", false},
		{"sentinel none", "None", false},
		{"sentinel null", "null", false},
		{"sentinel zero", "0", false},
		{"sentinel n/a", "N/A", false},
		{"numeric value", "2025", true},
		{"padded value", "  AWD  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFilled(tt.value))
		})
	}
}

func TestNewRecord(t *testing.T) {
	r := NewRecord()

	assert.Len(t, r, len(AllFields()))
	for _, key := range AllFields() {
		assert.Equal(t, Unset, r.Get(key))
		assert.False(t, r.Filled(key))
	}
}

func TestRecordSetIfUnfilled(t *testing.T) {
	r := NewRecord()

	require.True(t, r.SetIfUnfilled(FieldHorsepower, "435 HP"))
	assert.Equal(t, "435 HP", r.Get(FieldHorsepower))

	// Already filled: second write must be rejected.
	assert.False(t, r.SetIfUnfilled(FieldHorsepower, "500 HP"))
	assert.Equal(t, "435 HP", r.Get(FieldHorsepower))

	// Sentinel values never merge.
	assert.False(t, r.SetIfUnfilled(FieldTorque, "Not specified"))
	assert.False(t, r.Filled(FieldTorque))

	// Unknown keys are rejected.
	assert.False(t, r.SetIfUnfilled(FieldKey("bogus"), "value"))

	// Values are trimmed on write.
	require.True(t, r.SetIfUnfilled(FieldDrivetrain, "  AWD "))
	assert.Equal(t, "AWD", r.Get(FieldDrivetrain))
}

func TestCalculateCoverage(t *testing.T) {
	r := NewRecord()
	cov := CalculateCoverage(r)

	assert.Equal(t, 0, cov.Filled)
	assert.Equal(t, len(AllFields()), cov.Total)
	assert.Zero(t, cov.Percent)
	assert.Len(t, cov.Missing, len(AllFields()))

	r.SetIfUnfilled(FieldMake, "BYD")
	r.SetIfUnfilled(FieldModel, "Leopard 8")
	r.SetIfUnfilled(FieldYear, "2025")

	cov = CalculateCoverage(r)
	assert.Equal(t, 3, cov.Filled)
	assert.InDelta(t, 100*3.0/float64(cov.Total), cov.Percent, 0.001)
	assert.NotContains(t, cov.Missing, FieldMake)
	assert.Contains(t, cov.Missing, FieldTorque)
}

func TestCoverageMissingOrderIsStable(t *testing.T) {
	a := CalculateCoverage(NewRecord())
	b := CalculateCoverage(NewRecord())
	assert.Equal(t, a.Missing, b.Missing)
}

func TestRecordClone(t *testing.T) {
	r := NewRecord()
	r.SetIfUnfilled(FieldMake, "ZEEKR")

	c := r.Clone()
	c[FieldMake] = "changed"

	assert.Equal(t, "ZEEKR", r.Get(FieldMake))
}
