// Package azure prices virtual machine sizes with the Azure Retail Prices API
// and reads their vCPU and memory from the Resource SKUs API.
package azure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"flavorwise/internal/core"
	"flavorwise/internal/pkg/restclient"
	"flavorwise/internal/pricetable"
)

const (
	defaultPricesURL     = "https://prices.azure.com/api/retail/prices"
	defaultManagementURL = "https://management.azure.com"
	defaultLoginURL      = "https://login.microsoftonline.com"

	skusAPIVersion  = "2021-07-01"
	managementScope = "https://management.azure.com/.default"

	defaultOS       = "Linux"
	defaultCurrency = "USD"

	attrKind    = "kind"
	attrOS      = "os"
	attrMeterID = "meter_id"

	kindPrice = "price"
	kindSize  = "size"
)

// Credentials is the Azure service principal bundle.
type Credentials struct {
	TenantID       string `yaml:"tenant_id"`
	ClientID       string `yaml:"client_id"`
	Secret         string `yaml:"secret"`
	SubscriptionID string `yaml:"subscription_id"`
}

// Options tunes the adapter. Empty URLs use the public endpoints.
type Options struct {
	Freshness     time.Duration
	RateLimit     float64
	Burst         int
	HTTPClient    *http.Client
	PricesURL     string
	ManagementURL string
	LoginURL      string
}

// Adapter implements core.Adapter for Azure.
type Adapter struct {
	creds     Credentials
	table     pricetable.Table
	freshness time.Duration

	prices *restclient.Client
	mgmt   *restclient.Client
	login  *restclient.Client

	tokenMu     sync.Mutex
	token       string
	tokenExpiry time.Time
}

// New creates the adapter.
func New(creds Credentials, table pricetable.Table, opts Options) *Adapter {
	if table == nil {
		table = pricetable.NewMemoryTable()
	}
	if opts.PricesURL == "" {
		opts.PricesURL = defaultPricesURL
	}
	if opts.ManagementURL == "" {
		opts.ManagementURL = defaultManagementURL
	}
	if opts.LoginURL == "" {
		opts.LoginURL = defaultLoginURL
	}

	a := &Adapter{creds: creds, table: table, freshness: opts.Freshness}
	cfg := restclient.Config{Provider: core.CloudAzure, RateLimit: opts.RateLimit, Burst: opts.Burst}

	cfg.BaseURL = opts.PricesURL
	a.prices = restclient.New(opts.HTTPClient, cfg, nil)
	cfg.BaseURL = strings.TrimRight(opts.ManagementURL, "/")
	a.mgmt = restclient.New(opts.HTTPClient, cfg, a.authorize)
	cfg.BaseURL = strings.TrimRight(opts.LoginURL, "/")
	a.login = restclient.New(opts.HTTPClient, cfg, nil)
	return a
}

// Cloud implements core.Adapter.
func (a *Adapter) Cloud() core.CloudType {
	return core.CloudAzure
}

// Family implements core.Adapter.
func (a *Adapter) Family(flavorID string) string {
	return Family(flavorID)
}

// ResolveFlavorPrice implements core.Adapter.
func (a *Adapter) ResolveFlavorPrice(ctx context.Context, q core.PriceQuery) (*core.FlavorRecord, error) {
	if q.ResourceType == core.ResourceRDSInstance {
		return nil, core.NewInvalidArgumentError("azure adapter prices virtual machines only", nil)
	}
	region := NormalizeRegion(q.Region)
	if region == "" {
		return nil, core.NewInvalidArgumentError("azure region is required", nil)
	}
	currency := currencyOf(q.Currency)

	filter := pricetable.Filter{
		Provider:   string(core.CloudAzure),
		Region:     region,
		FlavorID:   q.FlavorID,
		Attributes: map[string]string{attrKind: kindPrice, attrOS: osOf(q.OSType)},
	}
	if q.MeterID != "" {
		filter.Attributes[attrMeterID] = q.MeterID
	}

	odata := fmt.Sprintf("serviceName eq 'Virtual Machines' and priceType eq 'Consumption' and armRegionName eq '%s' and armSkuName eq '%s'", odataString(region), odataString(q.FlavorID))
	rows, err := pricetable.ReadThroughCatalog(ctx, a.table, filter, "prices/"+currency+"/"+region+"/"+q.FlavorID, a.freshness,
		func(ctx context.Context) ([]pricetable.Row, error) {
			return a.fetchPrices(ctx, odata, currency)
		})
	if err != nil {
		return nil, err
	}
	rows = withCurrency(rows, currency)
	if len(rows) == 0 {
		return nil, core.NewNotFoundError(core.CloudAzure, fmt.Sprintf("no consumption price for %s in %s", q.FlavorID, region))
	}

	sizes, err := a.sizes(ctx, region)
	if err != nil {
		return nil, err
	}
	size, ok := sizes[q.FlavorID]
	if !ok {
		return nil, core.NewNotFoundError(core.CloudAzure, fmt.Sprintf("size %s is not offered in %s", q.FlavorID, region))
	}

	best := cheapest(rows)
	return &core.FlavorRecord{
		Provider: core.CloudAzure,
		Region:   region,
		FlavorID: q.FlavorID,
		Family:   Family(q.FlavorID),
		CPU:      size.CPU,
		RAM:      size.RAM,
		Price:    best.Price,
		Currency: best.Currency,
	}, nil
}

// ListCandidateFlavors implements core.Adapter.
func (a *Adapter) ListCandidateFlavors(ctx context.Context, q core.CandidateQuery) ([]core.FlavorRecord, error) {
	if q.ResourceType == core.ResourceRDSInstance {
		return nil, core.NewInvalidArgumentError("azure adapter prices virtual machines only", nil)
	}
	region := NormalizeRegion(q.Region)
	if region == "" {
		return nil, core.NewInvalidArgumentError("azure region is required", nil)
	}
	currency := currencyOf(q.Currency)

	sizes, err := a.sizes(ctx, region)
	if err != nil {
		return nil, err
	}

	odata := fmt.Sprintf("serviceName eq 'Virtual Machines' and priceType eq 'Consumption' and armRegionName eq '%s'", odataString(region))
	rows, err := pricetable.ReadThroughCatalog(ctx, a.table, pricetable.Filter{
		Provider:   string(core.CloudAzure),
		Region:     region,
		Attributes: map[string]string{attrKind: kindPrice, attrOS: osOf(q.OSType)},
	}, "prices/"+currency+"/"+region, a.freshness, func(ctx context.Context) ([]pricetable.Row, error) {
		return a.fetchPrices(ctx, odata, currency)
	})
	if err != nil {
		return nil, err
	}

	byFlavor := make(map[string][]pricetable.Row)
	for _, r := range withCurrency(rows, currency) {
		byFlavor[r.FlavorID] = append(byFlavor[r.FlavorID], r)
	}

	out := make([]core.FlavorRecord, 0, len(byFlavor))
	for flavor, priced := range byFlavor {
		size, ok := sizes[flavor]
		if !ok {
			continue
		}
		best := cheapest(priced)
		rec := core.FlavorRecord{
			Provider: core.CloudAzure,
			Region:   region,
			FlavorID: flavor,
			Family:   Family(flavor),
			CPU:      size.CPU,
			RAM:      size.RAM,
			Price:    best.Price,
			Currency: best.Currency,
		}
		if q.Matches(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FlavorID < out[j].FlavorID })
	return out, nil
}

// odataString escapes s for use inside a quoted OData string literal.
func odataString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// fetchPrices pages through the Retail Prices API.
func (a *Adapter) fetchPrices(ctx context.Context, odata, currency string) ([]pricetable.Row, error) {
	req := restclient.Request{
		Operation: "retail_prices",
		Query:     url.Values{"$filter": {odata}, "currencyCode": {currency}},
	}

	var rows []pricetable.Row
	for {
		resp, err := a.prices.DoRaw(ctx, req)
		if err != nil {
			return nil, err
		}
		body := gjson.ParseBytes(resp.Body)
		rows = append(rows, parsePriceItems(body.Get("Items"))...)

		next := body.Get("NextPageLink").String()
		if next == "" {
			return rows, nil
		}
		req = restclient.Request{Operation: "retail_prices", URL: next}
	}
}

func parsePriceItems(items gjson.Result) []pricetable.Row {
	var rows []pricetable.Row
	items.ForEach(func(_, item gjson.Result) bool {
		sku := item.Get("armSkuName").String()
		skuName := item.Get("skuName").String()
		meterName := item.Get("meterName").String()
		if sku == "" || item.Get("type").String() != "Consumption" {
			return true
		}
		if isSpot(skuName) || isSpot(meterName) {
			return true
		}
		os := defaultOS
		if strings.Contains(item.Get("productName").String(), "Windows") {
			os = "Windows"
		}
		rows = append(rows, pricetable.Row{
			Provider: string(core.CloudAzure),
			SKU:      item.Get("skuId").String() + "/" + item.Get("meterId").String() + "/" + item.Get("currencyCode").String(),
			Region:   NormalizeRegion(item.Get("armRegionName").String()),
			FlavorID: sku,
			Attributes: map[string]string{
				attrKind:    kindPrice,
				attrOS:      os,
				attrMeterID: item.Get("meterId").String(),
			},
			Price:    item.Get("retailPrice").Float(),
			Currency: item.Get("currencyCode").String(),
			Unit:     item.Get("unitOfMeasure").String(),
		})
		return true
	})
	return rows
}

type vmSize struct {
	CPU int
	RAM int64
}

// sizes returns the VM sizes offered in region keyed by name.
func (a *Adapter) sizes(ctx context.Context, region string) (map[string]vmSize, error) {
	if a.creds.SubscriptionID == "" {
		return nil, core.NewCredentialsInvalidError(core.CloudAzure, "subscription_id is not configured", nil)
	}

	rows, err := pricetable.ReadThroughCatalog(ctx, a.table, pricetable.Filter{
		Provider:   string(core.CloudAzure),
		Region:     region,
		Attributes: map[string]string{attrKind: kindSize},
	}, "sizes/"+region, a.freshness, func(ctx context.Context) ([]pricetable.Row, error) {
		return a.fetchSizes(ctx, region)
	})
	if err != nil {
		return nil, err
	}

	out := make(map[string]vmSize, len(rows))
	for _, r := range rows {
		out[r.FlavorID] = vmSize{CPU: r.CPU, RAM: r.RAM}
	}
	return out, nil
}

func (a *Adapter) fetchSizes(ctx context.Context, region string) ([]pricetable.Row, error) {
	req := restclient.Request{
		Operation: "resource_skus",
		Endpoint:  "/subscriptions/" + url.PathEscape(a.creds.SubscriptionID) + "/providers/Microsoft.Compute/skus",
		Query: url.Values{
			"api-version": {skusAPIVersion},
			"$filter":     {fmt.Sprintf("location eq '%s'", odataString(region))},
		},
	}

	var rows []pricetable.Row
	for {
		resp, err := a.mgmt.DoRaw(ctx, req)
		if err != nil {
			return nil, err
		}
		body := gjson.ParseBytes(resp.Body)
		body.Get("value").ForEach(func(_, sku gjson.Result) bool {
			if sku.Get("resourceType").String() != "virtualMachines" {
				return true
			}
			var (
				cpu      int
				memoryGB float64
			)
			sku.Get("capabilities").ForEach(func(_, c gjson.Result) bool {
				switch c.Get("name").String() {
				case "vCPUs":
					cpu = int(c.Get("value").Int())
				case "MemoryGB":
					memoryGB = c.Get("value").Float()
				}
				return true
			})
			if cpu == 0 || memoryGB == 0 {
				return true
			}
			name := sku.Get("name").String()
			rows = append(rows, pricetable.Row{
				Provider:   string(core.CloudAzure),
				SKU:        "size/" + region + "/" + name,
				Region:     region,
				FlavorID:   name,
				Attributes: map[string]string{attrKind: kindSize},
				CPU:        cpu,
				RAM:        core.GiBToMiB(memoryGB),
			})
			return true
		})

		next := body.Get("nextLink").String()
		if next == "" {
			return rows, nil
		}
		req = restclient.Request{Operation: "resource_skus", URL: next}
	}
}

// authorize sets a bearer token obtained with the client credentials grant.
func (a *Adapter) authorize(ctx context.Context, req *http.Request) error {
	a.tokenMu.Lock()
	defer a.tokenMu.Unlock()

	if a.token == "" || time.Now().After(a.tokenExpiry) {
		if a.creds.TenantID == "" || a.creds.ClientID == "" || a.creds.Secret == "" {
			return core.NewCredentialsInvalidError(core.CloudAzure, "tenant_id, client_id and secret are required", nil)
		}
		var tok struct {
			AccessToken string `json:"access_token"`
			ExpiresIn   int    `json:"expires_in"`
		}
		err := a.login.Do(ctx, restclient.Request{
			Operation: "token",
			Method:    http.MethodPost,
			Endpoint:  "/" + url.PathEscape(a.creds.TenantID) + "/oauth2/v2.0/token",
			Form: url.Values{
				"grant_type":    {"client_credentials"},
				"client_id":     {a.creds.ClientID},
				"client_secret": {a.creds.Secret},
				"scope":         {managementScope},
			},
		}, &tok)
		if err != nil {
			// Any token failure means the principal was rejected.
			if core.KindOf(err) != core.ErrorKindUpstreamUnavailable {
				return core.NewCredentialsInvalidError(core.CloudAzure, "token request rejected", err)
			}
			return err
		}
		a.token = tok.AccessToken
		// Refresh a minute early.
		a.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	}

	req.Header.Set("Authorization", "Bearer "+a.token)
	return nil
}

func cheapest(rows []pricetable.Row) pricetable.Row {
	best := rows[0]
	for _, r := range rows[1:] {
		if r.Price < best.Price {
			best = r
		}
	}
	return best
}

func withCurrency(rows []pricetable.Row, currency string) []pricetable.Row {
	out := rows[:0:0]
	for _, r := range rows {
		if r.Currency == "" || strings.EqualFold(r.Currency, currency) {
			out = append(out, r)
		}
	}
	return out
}

func isSpot(name string) bool {
	return strings.Contains(name, "Spot") || strings.Contains(name, "Low Priority")
}

func osOf(osType string) string {
	if strings.EqualFold(osType, "windows") {
		return "Windows"
	}
	return defaultOS
}

func currencyOf(c string) string {
	if c == "" {
		return defaultCurrency
	}
	return strings.ToUpper(c)
}
