package features

// todCurve normalizes expected intraday volume by exchange-local hour.
// Values outside the session default to 1.0 (no adjustment).
var todCurve = map[int]float64{
	9:  1.8,
	10: 1.2,
	11: 0.8,
	12: 0.7,
	13: 0.8,
	14: 0.9,
	15: 1.3,
	16: 1.6,
}

// TODMultiplier returns the expected-volume multiplier for an
// exchange-local hour.
func TODMultiplier(hour int) float64 {
	if m, ok := todCurve[hour]; ok {
		return m
	}
	return 1.0
}
