package extract

import (
	"testing"

	"github.com/c360studio/autopress/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHorsepower(t *testing.T) {
	text := "The dual-motor setup makes 435 hp, though some sources quote 320 kW."

	matches := Extract(text, spec.FieldHorsepower)
	require.Len(t, matches, 2)

	assert.Equal(t, "435 HP", matches[0].Value)
	assert.Equal(t, 0, matches[0].PatternIndex)

	// 320 kW * 1.341 = 429.1 -> 429 HP, converted before it reaches consensus.
	assert.Equal(t, "429 HP", matches[1].Value)
	assert.Equal(t, 1, matches[1].PatternIndex)
}

func TestExtractPreservesFirstSeenOrder(t *testing.T) {
	text := "First 300 hp then 400 hp then 300 hp again."

	values := Values(Extract(text, spec.FieldHorsepower))
	assert.Equal(t, []string{"300 HP", "400 HP", "300 HP"}, values)
}

func TestExtractTorqueUnits(t *testing.T) {
	text := "Torque is rated at 640 Nm (472 lb-ft)."

	values := Values(Extract(text, spec.FieldTorque))
	assert.Contains(t, values, "640 Nm")
	assert.Contains(t, values, "472 lb-ft")
}

func TestExtractRange(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"cltc km", "CLTC range of 705 km on a full charge", "705 km"},
		{"epa miles", "EPA range: 310 miles", "310 mi"},
		{"trailing form", "delivers 600 km of range", "600 km"},
		{"chinese", "续航 705 公里", "705 km"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := Values(Extract(tt.text, spec.FieldRange))
			require.NotEmpty(t, values)
			assert.Equal(t, tt.want, values[0])
		})
	}
}

func TestExtractAcceleration(t *testing.T) {
	values := Values(Extract("0-100 km/h in 4.9 seconds", spec.FieldAcceleration))
	require.NotEmpty(t, values)
	assert.Equal(t, "4.9 s (0-100 km/h)", values[0])
}

func TestExtractDrivetrain(t *testing.T) {
	text := "Available in AWD, with a front-wheel drive base trim. 顶配是四驱。"

	values := Values(Extract(text, spec.FieldDrivetrain))
	assert.Contains(t, values, "AWD")
	assert.Contains(t, values, "front-wheel drive")
	assert.Contains(t, values, "四驱")
}

func TestExtractPrice(t *testing.T) {
	text := "Priced at $52,990 in the US and 23.98万元 in China."

	values := Values(Extract(text, spec.FieldPrice))
	assert.Contains(t, values, "$52990")
	assert.Contains(t, values, "23.98万元")
}

func TestExtractBattery(t *testing.T) {
	values := Values(Extract("a 100 kWh pack", spec.FieldBattery))
	require.NotEmpty(t, values)
	assert.Equal(t, "100 kWh", values[0])
}

func TestExtractUnknownFieldOrEmptyText(t *testing.T) {
	assert.Nil(t, Extract("", spec.FieldHorsepower))
	assert.Nil(t, Extract("some text", spec.FieldKey("bogus")))
	assert.Nil(t, Extract("no numbers here", spec.FieldHorsepower))
}

func TestExtractAll(t *testing.T) {
	text := "The 2025 model makes 435 hp and 640 Nm, does 0-100 km/h in 4.9s, " +
		"with a 100 kWh battery and CLTC range of 705 km. AWD standard."

	all := ExtractAll(text)

	assert.Contains(t, all, spec.FieldHorsepower)
	assert.Contains(t, all, spec.FieldTorque)
	assert.Contains(t, all, spec.FieldAcceleration)
	assert.Contains(t, all, spec.FieldBattery)
	assert.Contains(t, all, spec.FieldRange)
	assert.Contains(t, all, spec.FieldDrivetrain)
	assert.Contains(t, all, spec.FieldYear)
	assert.NotContains(t, all, spec.FieldPrice)
}

func TestMatchProvenance(t *testing.T) {
	text := "xx 435 hp yy"
	matches := Extract(text, spec.FieldHorsepower)
	require.Len(t, matches, 1)

	assert.Equal(t, "435 hp", matches[0].Raw)
	assert.Equal(t, 3, matches[0].Offset)
}
