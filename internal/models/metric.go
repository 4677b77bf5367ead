package models

import (
	"encoding/json"
	"fmt"
)

// Metric is a three-valued numeric field: known, unknown (absent upstream),
// or failed (lookup errored, reason retained). Scoring treats unknown and
// failed identically; the reason only feeds per-symbol diagnostics.
type Metric struct {
	val    float64
	known  bool
	reason string
}

// KnownMetric wraps a value observed from upstream.
func KnownMetric(v float64) Metric {
	return Metric{val: v, known: true}
}

// UnknownMetric marks a field the provider simply does not have.
func UnknownMetric() Metric {
	return Metric{}
}

// FailedMetric marks a field whose lookup failed, keeping the reason.
func FailedMetric(reason string) Metric {
	return Metric{reason: reason}
}

// Value returns the value and whether it is known.
func (m Metric) Value() (float64, bool) {
	return m.val, m.known
}

// Known reports whether the metric holds a real observation.
func (m Metric) Known() bool {
	return m.known
}

// Or returns the value when known, otherwise the fallback.
func (m Metric) Or(fallback float64) float64 {
	if m.known {
		return m.val
	}
	return fallback
}

// MustValue returns the value; callers must have checked Known first.
func (m Metric) MustValue() float64 {
	if !m.known {
		panic("models: MustValue on unknown metric")
	}
	return m.val
}

// Reason returns the failure reason, empty for plain-unknown or known.
func (m Metric) Reason() string {
	return m.reason
}

// MarshalJSON encodes known metrics as numbers and unknown ones as null,
// so cached candidates round-trip without inventing zeros.
func (m Metric) MarshalJSON() ([]byte, error) {
	if !m.known {
		return []byte("null"), nil
	}
	return json.Marshal(m.val)
}

// UnmarshalJSON accepts a number or null.
func (m *Metric) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = Metric{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("metric: %w", err)
	}
	*m = KnownMetric(v)
	return nil
}

func (m Metric) String() string {
	if !m.known {
		if m.reason != "" {
			return fmt.Sprintf("unknown(%s)", m.reason)
		}
		return "unknown"
	}
	return fmt.Sprintf("%.4f", m.val)
}
