package crestron

import "math"

const (
	// LEVEL_MAX is the top of the hub's native 16-bit range for levels and positions.
	LEVEL_MAX = 65535
)

// ToPercentage converts a native 0..65535 value to a 0..100 percentage.
func ToPercentage(raw int) int {
	if raw <= 0 {
		return 0
	}
	if raw > LEVEL_MAX {
		raw = LEVEL_MAX
	}
	return int(math.Round(float64(raw) / LEVEL_MAX * 100))
}

// ToRaw converts a 0..100 percentage to the hub's native 0..65535 range.
func ToRaw(pct int) int {
	if pct <= 0 {
		return 0
	}
	if pct > 100 {
		pct = 100
	}
	return int(math.Round(LEVEL_MAX * float64(pct) / 100))
}
