package azure

import (
	"strings"
	"unicode"
)

// NormalizeRegion turns display names into ARM region names: "East US" becomes "eastus".
func NormalizeRegion(region string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(region), " ", ""))
}

// Family returns the size series of an ARM size name. Core count and the
// tier prefix are dropped, feature letters and the version kept:
// "Standard_D4as_v5" is "Das_v5", "Standard_B2ms" is "Bms".
func Family(flavorID string) string {
	name := flavorID
	if i := strings.Index(name, "_"); i >= 0 && (name[:i] == "Standard" || name[:i] == "Basic") {
		name = name[i+1:]
	}

	base, version, _ := strings.Cut(name, "_")
	var b strings.Builder
	for _, r := range base {
		if !unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if version != "" {
		b.WriteString("_")
		b.WriteString(version)
	}
	return b.String()
}
