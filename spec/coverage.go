package spec

// Coverage summarizes how complete a record is against the fixed field set.
type Coverage struct {
	Filled  int        `json:"filled"`
	Total   int        `json:"total"`
	Percent float64    `json:"percent"`
	Missing []FieldKey `json:"missing,omitempty"`
}

// CalculateCoverage computes coverage for a record. Pure function: it is
// cheap, deterministic and safe to call repeatedly, so callers derive
// coverage on demand instead of storing it.
func CalculateCoverage(r Record) Coverage {
	fields := AllFields()
	cov := Coverage{Total: len(fields)}
	for _, key := range fields {
		if r.Filled(key) {
			cov.Filled++
		} else {
			cov.Missing = append(cov.Missing, key)
		}
	}
	if cov.Total > 0 {
		cov.Percent = 100 * float64(cov.Filled) / float64(cov.Total)
	}
	return cov
}
