// Package spec defines the canonical vehicle specification record and the
// coverage calculation that drives gap-fill decisions.
package spec

import "strings"

// FieldKey identifies one field of a specification record.
type FieldKey string

// The fixed field set. Every record holds a value for every key; absence is
// expressed with the Unset sentinel, never a missing key.
const (
	FieldMake         FieldKey = "make"
	FieldModel        FieldKey = "model"
	FieldTrim         FieldKey = "trim"
	FieldYear         FieldKey = "year"
	FieldEngine       FieldKey = "engine"
	FieldHorsepower   FieldKey = "horsepower"
	FieldTorque       FieldKey = "torque"
	FieldAcceleration FieldKey = "acceleration"
	FieldTopSpeed     FieldKey = "top_speed"
	FieldDrivetrain   FieldKey = "drivetrain"
	FieldBattery      FieldKey = "battery"
	FieldRange        FieldKey = "range"
	FieldCharging     FieldKey = "charging"
	FieldPrice        FieldKey = "price"
	FieldSeats        FieldKey = "seats"
	FieldDimensions   FieldKey = "dimensions"
	FieldWeight       FieldKey = "weight"
	FieldTransmission FieldKey = "transmission"
)

// Unset is the sentinel stored for fields with no known value.
const Unset = "Not specified"

// AllFields returns every field key in canonical order. The order is stable
// so prompts and reports list fields deterministically.
func AllFields() []FieldKey {
	return []FieldKey{
		FieldMake, FieldModel, FieldTrim, FieldYear, FieldEngine,
		FieldHorsepower, FieldTorque, FieldAcceleration, FieldTopSpeed,
		FieldDrivetrain, FieldBattery, FieldRange, FieldCharging,
		FieldPrice, FieldSeats, FieldDimensions, FieldWeight,
		FieldTransmission,
	}
}

// fieldDescriptions holds short human descriptions used when asking an LLM
// to fill missing fields.
var fieldDescriptions = map[FieldKey]string{
	FieldMake:         "manufacturer brand name",
	FieldModel:        "model name or number",
	FieldTrim:         "trim level or variant",
	FieldYear:         "model year",
	FieldEngine:       "engine or motor configuration",
	FieldHorsepower:   "power output in HP",
	FieldTorque:       "torque with unit (Nm or lb-ft)",
	FieldAcceleration: "0-100 km/h time in seconds",
	FieldTopSpeed:     "top speed with unit",
	FieldDrivetrain:   "drivetrain (FWD, RWD, AWD or 4WD)",
	FieldBattery:      "battery capacity in kWh",
	FieldRange:        "driving range with unit (km or mi)",
	FieldCharging:     "charging capability or time",
	FieldPrice:        "price with currency",
	FieldSeats:        "seating capacity",
	FieldDimensions:   "length x width x height",
	FieldWeight:       "curb weight",
	FieldTransmission: "transmission type",
}

// Describe returns the short human description of a field, or the key itself
// for unknown fields.
func Describe(key FieldKey) string {
	if d, ok := fieldDescriptions[key]; ok {
		return d
	}
	return string(key)
}

// IsValid reports whether the key belongs to the fixed field set.
func (k FieldKey) IsValid() bool {
	_, ok := fieldDescriptions[k]
	return ok
}

// String returns the string representation of the field key.
func (k FieldKey) String() string {
	return string(k)
}

// sentinels are values that never count as a filled field. Matched
// case-insensitively after trimming.
var sentinels = map[string]bool{
	"not specified": true,
	"none":          true,
	"null":          true,
	"n/a":           true,
	"unknown":       true,
	"0":             true,
	"":              true,
}

// IsFilled reports whether a raw value counts as a populated field:
// non-empty after trimming and not a placeholder sentinel.
func IsFilled(value string) bool {
	return !sentinels[strings.ToLower(strings.TrimSpace(value))]
}

// Record is a vehicle specification: one value per field key. A zero-value
// Record is not usable; construct with NewRecord so every key is present.
type Record map[FieldKey]string

// NewRecord returns a record with every field set to the Unset sentinel.
func NewRecord() Record {
	r := make(Record, len(fieldDescriptions))
	for _, k := range AllFields() {
		r[k] = Unset
	}
	return r
}

// Get returns the value for a key, or Unset for keys never written.
func (r Record) Get(key FieldKey) string {
	if v, ok := r[key]; ok {
		return v
	}
	return Unset
}

// Filled reports whether the field holds a non-sentinel value.
func (r Record) Filled(key FieldKey) bool {
	return IsFilled(r.Get(key))
}

// SetIfUnfilled writes value only when the field is currently unfilled and
// the value itself passes the filled predicate. Returns true if the record
// changed. Both the consensus resolver and the gap-fill orchestrator go
// through this, which is what guarantees no overwrite of known values.
func (r Record) SetIfUnfilled(key FieldKey, value string) bool {
	if !key.IsValid() || r.Filled(key) || !IsFilled(value) {
		return false
	}
	r[key] = strings.TrimSpace(value)
	return true
}

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
