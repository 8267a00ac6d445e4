package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MiBPerGiB converts between the two RAM units used by provider catalogs.
const MiBPerGiB = 1024

// ParseMemoryMiB converts a provider memory string to MiB.
// Accepted forms: "8 GiB", "0.5 GiB", "16GB", "512 MiB", "2048" (bare numbers are GiB).
func ParseMemoryMiB(s string) (int64, error) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if raw == "" {
		return 0, fmt.Errorf("empty memory value")
	}

	unit := "gib"
	lower := strings.ToLower(raw)
	for _, suffix := range []string{"gib", "gb", "mib", "mb"} {
		if strings.HasSuffix(lower, suffix) {
			unit = suffix
			lower = strings.TrimSpace(strings.TrimSuffix(lower, suffix))
			break
		}
	}

	v, err := strconv.ParseFloat(lower, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory value %q: %w", s, err)
	}

	switch unit {
	case "mib", "mb":
		return int64(math.Round(v)), nil
	default:
		return GiBToMiB(v), nil
	}
}

// GiBToMiB converts GiB to MiB, rounding to the nearest MiB.
func GiBToMiB(gib float64) int64 {
	return int64(math.Round(gib * MiBPerGiB))
}

// Round3 rounds v to 3 decimal places, half away from zero.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
