package nebius

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Billing SKU names look like "Intel Ice Lake. 100% vCPU" and "Intel Ice Lake. RAM".
var (
	cpuSKUPattern = regexp.MustCompile(`^(.+?)\.?\s+(\d+)% vCPU$`)
	ramSKUPattern = regexp.MustCompile(`^(.+?)\.?\s+RAM$`)
)

const (
	resourceCPU = "cpu"
	resourceRAM = "ram"
)

type skuMatch struct {
	platform string
	resource string
	// fraction is the guaranteed vCPU share in percent; zero for RAM.
	fraction int
}

// matchSKU classifies a billing SKU name. Names of other services do not match.
func matchSKU(name string) (skuMatch, bool) {
	name = strings.TrimSpace(name)
	if m := cpuSKUPattern.FindStringSubmatch(name); m != nil {
		fraction, err := strconv.Atoi(m[2])
		if err != nil || fraction <= 0 || fraction > 100 {
			return skuMatch{}, false
		}
		return skuMatch{platform: m[1], resource: resourceCPU, fraction: fraction}, true
	}
	if m := ramSKUPattern.FindStringSubmatch(name); m != nil {
		return skuMatch{platform: m[1], resource: resourceRAM}, true
	}
	return skuMatch{}, false
}

// latestRate returns the unit price of the most recent pricing version in
// effect at now. Versions effective in the future are ignored.
func latestRate(sku gjson.Result, now time.Time) (float64, bool) {
	var (
		best     gjson.Result
		bestTime time.Time
		found    bool
	)
	sku.Get("pricingVersions").ForEach(func(_, v gjson.Result) bool {
		effective, err := time.Parse(time.RFC3339, v.Get("effectiveTime").String())
		if err != nil || effective.After(now) {
			return true
		}
		if !found || effective.After(bestTime) {
			best, bestTime, found = v, effective, true
		}
		return true
	})
	if !found {
		return 0, false
	}

	rate := best.Get("pricingExpressions.0.rates.0.unitPrice")
	if !rate.Exists() {
		return 0, false
	}
	price, err := strconv.ParseFloat(rate.String(), 64)
	if err != nil {
		return 0, false
	}
	return price, true
}
