// Package nebius prices Nebius compute configurations from the billing SKU
// catalog. Nebius has no fixed instance types: a flavor is a platform with a
// vCPU count and a RAM size, priced per vCPU-hour and per GiB-hour.
package nebius

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"flavorwise/internal/core"
	"flavorwise/internal/pkg/restclient"
	"flavorwise/internal/pricetable"
)

const (
	defaultBaseURL  = "https://billing.api.nebius.cloud/billing/v1"
	defaultCurrency = "USD"
	fullFraction    = 100

	attrPlatform = "platform"
	attrResource = "resource"
	attrFraction = "fraction"
)

// Configurations offered as search candidates.
var (
	candidateCPUs       = []int{2, 4, 8, 16, 32, 48, 64, 80, 96}
	candidateGiBPerCore = []int{1, 2, 4, 8}
)

var flavorPattern = regexp.MustCompile(`^(.+)-c(\d+)-m(\d+)(?:-f(\d+))?$`)

// Credentials holds the IAM token sent as a bearer token.
type Credentials struct {
	IAMToken string `yaml:"iam_token"`
}

// Platform maps a platform id to the name used in billing SKU names.
type Platform struct {
	ID   string
	Name string
}

// Options tunes the adapter.
type Options struct {
	Freshness  time.Duration
	RateLimit  float64
	Burst      int
	HTTPClient *http.Client
	BaseURL    string
	Currency   string
	Platforms  []Platform
	// CoreFractions lists the vCPU shares offered as candidates; 100 is always priced.
	CoreFractions []int
}

// Rates are the hourly unit prices of one platform at one core fraction.
type Rates struct {
	CPU      float64
	RAM      float64
	Currency string
}

// Cost is the hourly price of cpu vCPUs and ram units of RAM, ram being in
// the unit the RAM rate is quoted in (GiB).
func (r Rates) Cost(cpu int, ram float64) float64 {
	return float64(cpu)*r.CPU + ram*r.RAM
}

// Adapter implements core.Adapter for Nebius.
type Adapter struct {
	client    *restclient.Client
	table     pricetable.Table
	freshness time.Duration
	currency  string
	platforms []Platform
	fractions []int
	token     string
}

// New creates the adapter.
func New(creds Credentials, table pricetable.Table, opts Options) *Adapter {
	if table == nil {
		table = pricetable.NewMemoryTable()
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.Currency == "" {
		opts.Currency = defaultCurrency
	}
	fractions := []int{fullFraction}
	for _, f := range opts.CoreFractions {
		if f > 0 && f < fullFraction {
			fractions = append(fractions, f)
		}
	}

	a := &Adapter{
		table:     table,
		freshness: opts.Freshness,
		currency:  strings.ToUpper(opts.Currency),
		platforms: opts.Platforms,
		fractions: fractions,
		token:     creds.IAMToken,
	}
	a.client = restclient.New(opts.HTTPClient, restclient.Config{
		Provider:  core.CloudNebius,
		BaseURL:   strings.TrimRight(opts.BaseURL, "/"),
		RateLimit: opts.RateLimit,
		Burst:     opts.Burst,
	}, a.authorize)
	return a
}

func (a *Adapter) authorize(_ context.Context, req *http.Request) error {
	if a.token == "" {
		return core.NewCredentialsInvalidError(core.CloudNebius, "iam_token is not configured", nil)
	}
	req.Header.Set("Authorization", "Bearer "+a.token)
	return nil
}

// Cloud implements core.Adapter.
func (a *Adapter) Cloud() core.CloudType {
	return core.CloudNebius
}

// Family implements core.Adapter. The family of a Nebius flavor is its platform.
func (a *Adapter) Family(flavorID string) string {
	if m := flavorPattern.FindStringSubmatch(flavorID); m != nil {
		return m[1]
	}
	return flavorID
}

// FlavorID formats the id of a configuration.
func FlavorID(platform string, cpu int, ramGiB int, fraction int) string {
	id := fmt.Sprintf("%s-c%d-m%d", platform, cpu, ramGiB)
	if fraction != fullFraction {
		id += fmt.Sprintf("-f%d", fraction)
	}
	return id
}

// ResolveFlavorPrice implements core.Adapter for flavor ids produced by FlavorID.
func (a *Adapter) ResolveFlavorPrice(ctx context.Context, q core.PriceQuery) (*core.FlavorRecord, error) {
	m := flavorPattern.FindStringSubmatch(q.FlavorID)
	if m == nil {
		return nil, core.NewInvalidArgumentError(fmt.Sprintf("nebius flavor %q is not <platform>-c<cpu>-m<ram>", q.FlavorID), nil)
	}
	cpu, _ := strconv.Atoi(m[2])
	ramGiB, _ := strconv.Atoi(m[3])
	fraction := fullFraction
	if m[4] != "" {
		fraction, _ = strconv.Atoi(m[4])
	}

	rates, err := a.rates(ctx, a.currencyOf(q.Currency))
	if err != nil {
		return nil, err
	}
	r, ok := rates[m[1]][fraction]
	if !ok {
		return nil, core.NewNotFoundError(core.CloudNebius, fmt.Sprintf("no %d%% vCPU rate for platform %s", fraction, m[1]))
	}
	rec := a.record(q.Region, m[1], cpu, ramGiB, fraction, r)
	return &rec, nil
}

// ListCandidateFlavors implements core.Adapter over the standard vCPU and
// RAM combinations of every configured platform.
func (a *Adapter) ListCandidateFlavors(ctx context.Context, q core.CandidateQuery) ([]core.FlavorRecord, error) {
	if q.ResourceType == core.ResourceRDSInstance {
		return nil, core.NewInvalidArgumentError("nebius adapter prices compute instances only", nil)
	}
	rates, err := a.rates(ctx, a.currencyOf(q.Currency))
	if err != nil {
		return nil, err
	}

	var out []core.FlavorRecord
	for _, p := range a.platforms {
		for _, fraction := range a.fractions {
			r, ok := rates[p.ID][fraction]
			if !ok {
				continue
			}
			for _, cpu := range candidateCPUs {
				for _, perCore := range candidateGiBPerCore {
					rec := a.record(q.Region, p.ID, cpu, cpu*perCore, fraction, r)
					if q.Matches(rec) {
						out = append(out, rec)
					}
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FlavorID < out[j].FlavorID })
	return out, nil
}

// EquivalentFlavor returns the cheapest platform's configuration with exactly
// cpu vCPUs at full core fraction and ramGiB of RAM rounded up to whole GiB.
// The record is priced at the rounded size, so its FlavorID resolves to the
// same price.
func (a *Adapter) EquivalentFlavor(ctx context.Context, cpu int, ramGiB float64, currency string) (*core.FlavorRecord, error) {
	if cpu <= 0 || ramGiB <= 0 {
		return nil, core.NewInvalidArgumentError(fmt.Sprintf("cannot size a nebius flavor for %d vCPU and %g GiB", cpu, ramGiB), nil)
	}
	rates, err := a.rates(ctx, a.currencyOf(currency))
	if err != nil {
		return nil, err
	}
	gib := wholeGiB(ramGiB)

	var best *core.FlavorRecord
	for _, p := range a.platforms {
		r, ok := rates[p.ID][fullFraction]
		if !ok {
			continue
		}
		rec := a.record("", p.ID, cpu, gib, fullFraction, r)
		if best == nil || rec.Price < best.Price {
			best = &rec
		}
	}
	if best == nil {
		return nil, core.NewNotFoundError(core.CloudNebius, "no platform has full-core vCPU and RAM rates")
	}
	return best, nil
}

// wholeGiB rounds up to the next whole GiB, at least 1. Sizes within float
// noise of a whole number are not bumped.
func wholeGiB(ramGiB float64) int {
	return max(1, int(math.Ceil(ramGiB-1e-9)))
}

func (a *Adapter) record(region, platform string, cpu, ramGiB, fraction int, r Rates) core.FlavorRecord {
	return core.FlavorRecord{
		Provider: core.CloudNebius,
		Region:   region,
		FlavorID: FlavorID(platform, cpu, ramGiB, fraction),
		Family:   platform,
		CPU:      cpu,
		RAM:      int64(ramGiB) * core.MiBPerGiB,
		Price:    r.Cost(cpu, float64(ramGiB)),
		Currency: r.Currency,
	}
}

func (a *Adapter) currencyOf(c string) string {
	if c == "" {
		return a.currency
	}
	return strings.ToUpper(c)
}

// rates returns platform id -> core fraction -> rates. Platforms missing
// either a vCPU or a RAM SKU are left out.
func (a *Adapter) rates(ctx context.Context, currency string) (map[string]map[int]Rates, error) {
	rows, err := pricetable.ReadThroughCatalog(ctx, a.table, pricetable.Filter{
		Provider: string(core.CloudNebius),
	}, "skus/"+currency, a.freshness, func(ctx context.Context) ([]pricetable.Row, error) {
		return a.fetchSKUs(ctx, currency)
	})
	if err != nil {
		return nil, err
	}

	byName := make(map[string]string, len(a.platforms))
	for _, p := range a.platforms {
		byName[p.Name] = p.ID
	}

	cpuRates := make(map[string]map[int]float64)
	ramRates := make(map[string]float64)
	for _, r := range rows {
		if r.Currency != currency {
			continue
		}
		id, ok := byName[r.Attributes[attrPlatform]]
		if !ok {
			continue
		}
		switch r.Attributes[attrResource] {
		case resourceCPU:
			fraction, _ := strconv.Atoi(r.Attributes[attrFraction])
			if cpuRates[id] == nil {
				cpuRates[id] = make(map[int]float64)
			}
			cpuRates[id][fraction] = r.Price
		case resourceRAM:
			ramRates[id] = r.Price
		}
	}

	out := make(map[string]map[int]Rates, len(cpuRates))
	for id, fractions := range cpuRates {
		ram, ok := ramRates[id]
		if !ok {
			continue
		}
		out[id] = make(map[int]Rates, len(fractions))
		for fraction, cpu := range fractions {
			out[id][fraction] = Rates{CPU: cpu, RAM: ram, Currency: currency}
		}
	}
	return out, nil
}

func (a *Adapter) fetchSKUs(ctx context.Context, currency string) ([]pricetable.Row, error) {
	query := url.Values{"currency": {currency}, "pageSize": {"1000"}}
	now := time.Now()

	var rows []pricetable.Row
	for {
		resp, err := a.client.DoRaw(ctx, restclient.Request{Operation: "list_skus", Endpoint: "/skus", Query: query})
		if err != nil {
			return nil, err
		}
		body := gjson.ParseBytes(resp.Body)
		body.Get("skus").ForEach(func(_, sku gjson.Result) bool {
			m, ok := matchSKU(sku.Get("name").String())
			if !ok {
				return true
			}
			price, ok := latestRate(sku, now)
			if !ok {
				return true
			}
			attrs := map[string]string{attrPlatform: m.platform, attrResource: m.resource}
			if m.resource == resourceCPU {
				attrs[attrFraction] = strconv.Itoa(m.fraction)
			}
			rows = append(rows, pricetable.Row{
				Provider:   string(core.CloudNebius),
				SKU:        sku.Get("id").String() + "/" + currency,
				FlavorID:   m.platform,
				Attributes: attrs,
				Price:      price,
				Currency:   currency,
				Unit:       sku.Get("pricingUnit").String(),
			})
			return true
		})

		next := body.Get("nextPageToken").String()
		if next == "" {
			return rows, nil
		}
		query.Set("pageToken", next)
	}
}
