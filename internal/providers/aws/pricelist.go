package aws

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"flavorwise/internal/core"
	"flavorwise/internal/pricetable"
)

// Row attribute keys.
const (
	attrService      = "service"
	attrOS           = "os"
	attrPreinstalled = "preinstalled"
	attrEngine       = "engine"
	attrDeployment   = "deployment"
)

// parsePriceList converts GetProducts price list documents into table rows.
// Items without an hourly on-demand USD price, or with unparsable sizes, are skipped.
func parsePriceList(region, service string, docs []string) []pricetable.Row {
	rows := make([]pricetable.Row, 0, len(docs))
	for _, doc := range docs {
		if !gjson.Valid(doc) {
			continue
		}
		item := gjson.Parse(doc)
		attrs := item.Get("product.attributes")

		flavor := attrs.Get("instanceType").String()
		if flavor == "" || item.Get("product.sku").String() == "" {
			continue
		}
		cpu, err := strconv.Atoi(attrs.Get("vcpu").String())
		if err != nil {
			continue
		}
		ram, err := core.ParseMemoryMiB(attrs.Get("memory").String())
		if err != nil {
			continue
		}
		price, unit, ok := onDemandPrice(item)
		if !ok {
			continue
		}

		row := pricetable.Row{
			Provider:   string(core.CloudAWS),
			SKU:        item.Get("product.sku").String(),
			Region:     region,
			FlavorID:   flavor,
			Attributes: map[string]string{attrService: service},
			CPU:        cpu,
			RAM:        ram,
			Price:      price,
			Currency:   "USD",
			Unit:       unit,
		}
		if service == serviceRDS {
			row.Attributes[attrEngine] = attrs.Get("databaseEngine").String()
			row.Attributes[attrDeployment] = attrs.Get("deploymentOption").String()
		} else {
			row.Attributes[attrOS] = attrs.Get("operatingSystem").String()
			row.Attributes[attrPreinstalled] = attrs.Get("preInstalledSw").String()
		}
		rows = append(rows, row)
	}
	return rows
}

// onDemandPrice returns the first hourly USD rate under terms.OnDemand.
func onDemandPrice(item gjson.Result) (price float64, unit string, ok bool) {
	item.Get("terms.OnDemand").ForEach(func(_, term gjson.Result) bool {
		term.Get("priceDimensions").ForEach(func(_, dim gjson.Result) bool {
			u := dim.Get("unit").String()
			if !strings.HasPrefix(strings.ToLower(u), "hr") {
				return true
			}
			v, err := strconv.ParseFloat(dim.Get("pricePerUnit.USD").String(), 64)
			if err != nil {
				return true
			}
			price, unit, ok = v, u, true
			return false
		})
		return !ok
	})
	return price, unit, ok
}

// Family returns the instance family: "m5" for "m5.xlarge", "db.r6g" for "db.r6g.large".
func family(flavorID string) string {
	i := strings.LastIndex(flavorID, ".")
	if i <= 0 {
		return flavorID
	}
	return flavorID[:i]
}
