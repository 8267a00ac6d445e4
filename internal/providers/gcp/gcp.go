// Package gcp prices Compute Engine machine types from the Cloud Billing
// Catalog. A machine type's price is its vCPU count times the series' core
// rate plus its memory in GiB times the series' RAM rate.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"flavorwise/internal/core"
	"flavorwise/internal/pkg/restclient"
	"flavorwise/internal/pricetable"
)

const (
	defaultBaseURL = "https://cloudbilling.googleapis.com/v1"
	// Compute Engine service id in the billing catalog.
	computeServiceID = "6F81-5844-456A"
	defaultCurrency  = "USD"

	attrResource = "resource"
	resourceCore = "core"
	resourceRAM  = "ram"
)

var descriptionPattern = regexp.MustCompile(`^(.+?) Instance (Core|Ram) running in `)

// Credentials holds the billing catalog API key.
type Credentials struct {
	APIKey string `yaml:"api_key"`
}

// Options tunes the adapter.
type Options struct {
	Freshness  time.Duration
	RateLimit  float64
	Burst      int
	HTTPClient *http.Client
	BaseURL    string
}

// Adapter implements core.Adapter for GCP.
type Adapter struct {
	client    *restclient.Client
	table     pricetable.Table
	freshness time.Duration
	apiKey    string
}

// New creates the adapter.
func New(creds Credentials, table pricetable.Table, opts Options) *Adapter {
	if table == nil {
		table = pricetable.NewMemoryTable()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	return &Adapter{
		client: restclient.New(opts.HTTPClient, restclient.Config{
			Provider:  core.CloudGCP,
			BaseURL:   strings.TrimRight(opts.BaseURL, "/"),
			RateLimit: opts.RateLimit,
			Burst:     opts.Burst,
		}, nil),
		table:     table,
		freshness: opts.Freshness,
		apiKey:    creds.APIKey,
	}
}

// Cloud implements core.Adapter.
func (a *Adapter) Cloud() core.CloudType {
	return core.CloudGCP
}

// Family implements core.Adapter. The family is the machine series.
func (a *Adapter) Family(flavorID string) string {
	if mt, err := ParseMachineType(flavorID); err == nil {
		return mt.Series
	}
	series, _, _ := strings.Cut(flavorID, "-")
	return series
}

type seriesRates struct {
	core float64
	ram  float64
}

// ResolveFlavorPrice implements core.Adapter.
func (a *Adapter) ResolveFlavorPrice(ctx context.Context, q core.PriceQuery) (*core.FlavorRecord, error) {
	if err := checkQuery(q.ResourceType, q.Region); err != nil {
		return nil, err
	}
	mt, err := ParseMachineType(q.FlavorID)
	if err != nil {
		return nil, core.NewInvalidArgumentError(err.Error(), err)
	}
	rates, currency, err := a.rates(ctx, q.Region, q.Currency)
	if err != nil {
		return nil, err
	}
	rec, ok := a.record(q.Region, currency, mt, rates)
	if !ok {
		return nil, core.NewNotFoundError(core.CloudGCP, fmt.Sprintf("no on-demand core and ram rates for %s in %s", q.FlavorID, q.Region))
	}
	return &rec, nil
}

// ListCandidateFlavors implements core.Adapter over the predefined machine types.
func (a *Adapter) ListCandidateFlavors(ctx context.Context, q core.CandidateQuery) ([]core.FlavorRecord, error) {
	if err := checkQuery(q.ResourceType, q.Region); err != nil {
		return nil, err
	}
	rates, currency, err := a.rates(ctx, q.Region, q.Currency)
	if err != nil {
		return nil, err
	}

	var out []core.FlavorRecord
	for series, cpus := range predefinedCPUs {
		for class := range memoryRatios[series] {
			for _, cpu := range cpus {
				mt, err := ParseMachineType(fmt.Sprintf("%s-%s-%d", series, class, cpu))
				if err != nil {
					continue
				}
				rec, ok := a.record(q.Region, currency, mt, rates)
				if ok && q.Matches(rec) {
					out = append(out, rec)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FlavorID < out[j].FlavorID })
	return out, nil
}

func checkQuery(rt core.ResourceType, region string) error {
	if rt == core.ResourceRDSInstance {
		return core.NewInvalidArgumentError("gcp adapter prices compute engine instances only", nil)
	}
	if region == "" {
		return core.NewInvalidArgumentError("gcp region is required", nil)
	}
	return nil
}

func (a *Adapter) record(region, currency string, mt MachineType, rates map[string]seriesRates) (core.FlavorRecord, bool) {
	r, ok := rates[skuPrefix(mt)]
	if !ok || r.core <= 0 || r.ram <= 0 {
		return core.FlavorRecord{}, false
	}
	ramGiB := float64(mt.RAM) / core.MiBPerGiB
	return core.FlavorRecord{
		Provider: core.CloudGCP,
		Region:   region,
		FlavorID: mt.Name,
		Family:   mt.Series,
		CPU:      mt.CPU,
		RAM:      mt.RAM,
		Price:    float64(mt.CPU)*r.core + ramGiB*r.ram,
		Currency: currency,
	}, true
}

// rates returns core and ram rates keyed by SKU description prefix.
func (a *Adapter) rates(ctx context.Context, region, currency string) (map[string]seriesRates, string, error) {
	if currency == "" {
		currency = defaultCurrency
	}
	currency = strings.ToUpper(currency)

	rows, err := pricetable.ReadThroughCatalog(ctx, a.table, pricetable.Filter{
		Provider: string(core.CloudGCP),
		Region:   region,
	}, "skus/"+currency+"/"+region, a.freshness, func(ctx context.Context) ([]pricetable.Row, error) {
		return a.fetchSKUs(ctx, region, currency)
	})
	if err != nil {
		return nil, "", err
	}

	out := make(map[string]seriesRates)
	for _, r := range rows {
		if r.Currency != currency {
			continue
		}
		sr := out[r.FlavorID]
		switch r.Attributes[attrResource] {
		case resourceCore:
			sr.core = r.Price
		case resourceRAM:
			sr.ram = r.Price
		}
		out[r.FlavorID] = sr
	}
	return out, currency, nil
}

func (a *Adapter) fetchSKUs(ctx context.Context, region, currency string) ([]pricetable.Row, error) {
	if a.apiKey == "" {
		return nil, core.NewCredentialsInvalidError(core.CloudGCP, "api_key is not configured", nil)
	}
	query := url.Values{"key": {a.apiKey}, "currencyCode": {currency}, "pageSize": {"5000"}}

	var rows []pricetable.Row
	for {
		resp, err := a.client.DoRaw(ctx, restclient.Request{
			Operation: "list_skus",
			Endpoint:  "/services/" + computeServiceID + "/skus",
			Query:     query,
		})
		if err != nil {
			return nil, mapError(err)
		}
		body := gjson.ParseBytes(resp.Body)
		body.Get("skus").ForEach(func(_, sku gjson.Result) bool {
			if row, ok := parseSKU(sku, region, currency); ok {
				rows = append(rows, row)
			}
			return true
		})

		next := body.Get("nextPageToken").String()
		if next == "" {
			return rows, nil
		}
		query.Set("pageToken", next)
	}
}

func parseSKU(sku gjson.Result, region, currency string) (pricetable.Row, bool) {
	if sku.Get("category.usageType").String() != "OnDemand" {
		return pricetable.Row{}, false
	}
	m := descriptionPattern.FindStringSubmatch(sku.Get("description").String())
	if m == nil {
		return pricetable.Row{}, false
	}
	inRegion := false
	for _, r := range sku.Get("serviceRegions").Array() {
		if r.String() == region {
			inRegion = true
			break
		}
	}
	if !inRegion {
		return pricetable.Row{}, false
	}

	tiers := sku.Get("pricingInfo.0.pricingExpression.tieredRates").Array()
	if len(tiers) == 0 {
		return pricetable.Row{}, false
	}
	// The last tier is the rate charged past any free usage.
	unit := tiers[len(tiers)-1].Get("unitPrice")
	price := float64(unit.Get("units").Int()) + float64(unit.Get("nanos").Int())/1e9

	resource := resourceCore
	if m[2] == "Ram" {
		resource = resourceRAM
	}
	return pricetable.Row{
		Provider:   string(core.CloudGCP),
		SKU:        sku.Get("skuId").String() + "/" + region + "/" + currency,
		Region:     region,
		FlavorID:   m[1],
		Attributes: map[string]string{attrResource: resource},
		Price:      price,
		Currency:   currency,
		Unit:       sku.Get("pricingInfo.0.pricingExpression.usageUnit").String(),
	}, true
}

// mapError treats a rejected API key as a credentials failure; Google
// reports it as a 400.
func mapError(err error) error {
	var typed *core.Error
	if !errors.As(err, &typed) {
		return err
	}
	if strings.Contains(typed.Message, "API_KEY_INVALID") || strings.Contains(typed.Message, "API key not valid") {
		return core.NewCredentialsInvalidError(core.CloudGCP, "API key rejected", err)
	}
	return err
}
