// Package alibaba prices ECS instance types through the Alibaba Cloud ECS RPC API.
package alibaba

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"flavorwise/internal/core"
	"flavorwise/internal/pkg/restclient"
	"flavorwise/internal/pricetable"
)

const (
	defaultEndpoint = "https://ecs.aliyuncs.com"

	attrKind  = "kind"
	kindType  = "type"
	kindPrice = "price"

	pageSize = "100"
)

// Credentials is the Alibaba Cloud access key pair.
type Credentials struct {
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
}

// Options tunes the adapter.
type Options struct {
	Freshness  time.Duration
	RateLimit  float64
	Burst      int
	HTTPClient *http.Client
	Endpoint   string
}

// Adapter implements core.Adapter for Alibaba Cloud.
type Adapter struct {
	client    *restclient.Client
	table     pricetable.Table
	freshness time.Duration
}

// New creates the adapter. Requests are signed with the given key pair.
func New(creds Credentials, table pricetable.Table, opts Options) *Adapter {
	if table == nil {
		table = pricetable.NewMemoryTable()
	}
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}
	s := &signer{accessKeyID: creds.AccessKeyID, accessKeySecret: creds.AccessKeySecret, now: time.Now}
	return &Adapter{
		client: restclient.New(opts.HTTPClient, restclient.Config{
			Provider:  core.CloudAlibaba,
			BaseURL:   strings.TrimRight(opts.Endpoint, "/"),
			RateLimit: opts.RateLimit,
			Burst:     opts.Burst,
		}, s.sign),
		table:     table,
		freshness: opts.Freshness,
	}
}

// Cloud implements core.Adapter.
func (a *Adapter) Cloud() core.CloudType {
	return core.CloudAlibaba
}

// Family implements core.Adapter. "ecs.g6.large" belongs to "ecs.g6".
func (a *Adapter) Family(flavorID string) string {
	if i := strings.LastIndex(flavorID, "."); i > 0 {
		return flavorID[:i]
	}
	return flavorID
}

// ResolveFlavorPrice implements core.Adapter.
func (a *Adapter) ResolveFlavorPrice(ctx context.Context, q core.PriceQuery) (*core.FlavorRecord, error) {
	if err := checkQuery(q.ResourceType, q.Region); err != nil {
		return nil, err
	}
	types, err := a.instanceTypes(ctx, q.Region)
	if err != nil {
		return nil, err
	}
	spec, ok := types[q.FlavorID]
	if !ok {
		return nil, core.NewNotFoundError(core.CloudAlibaba, fmt.Sprintf("instance type %s does not exist", q.FlavorID))
	}
	return a.price(ctx, q.Region, spec)
}

// ListCandidateFlavors implements core.Adapter. Types the region does not
// sell are skipped.
func (a *Adapter) ListCandidateFlavors(ctx context.Context, q core.CandidateQuery) ([]core.FlavorRecord, error) {
	if err := checkQuery(q.ResourceType, q.Region); err != nil {
		return nil, err
	}
	types, err := a.instanceTypes(ctx, q.Region)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(types))
	for id, spec := range types {
		if q.Matches(core.FlavorRecord{CPU: spec.CPU, RAM: spec.RAM}) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]core.FlavorRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := a.price(ctx, q.Region, types[id])
		if core.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

func checkQuery(rt core.ResourceType, region string) error {
	if rt == core.ResourceRDSInstance {
		return core.NewInvalidArgumentError("alibaba adapter prices ECS instances only", nil)
	}
	if region == "" {
		return core.NewInvalidArgumentError("alibaba region is required", nil)
	}
	return nil
}

type instanceType struct {
	ID  string
	CPU int
	RAM int64
}

// instanceTypes returns the ECS instance type catalog keyed by type id.
func (a *Adapter) instanceTypes(ctx context.Context, region string) (map[string]instanceType, error) {
	rows, err := pricetable.ReadThroughCatalog(ctx, a.table, pricetable.Filter{
		Provider:   string(core.CloudAlibaba),
		Region:     region,
		Attributes: map[string]string{attrKind: kindType},
	}, "types/"+region, a.freshness, func(ctx context.Context) ([]pricetable.Row, error) {
		return a.describeInstanceTypes(ctx, region)
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]instanceType, len(rows))
	for _, r := range rows {
		out[r.FlavorID] = instanceType{ID: r.FlavorID, CPU: r.CPU, RAM: r.RAM}
	}
	return out, nil
}

func (a *Adapter) describeInstanceTypes(ctx context.Context, region string) ([]pricetable.Row, error) {
	query := url.Values{
		"Action":     {"DescribeInstanceTypes"},
		"RegionId":   {region},
		"MaxResults": {pageSize},
	}

	var rows []pricetable.Row
	for {
		resp, err := a.client.DoRaw(ctx, restclient.Request{Operation: "describe_instance_types", Endpoint: "/", Query: query})
		if err != nil {
			return nil, mapError(err)
		}
		body := gjson.ParseBytes(resp.Body)
		body.Get("InstanceTypes.InstanceType").ForEach(func(_, it gjson.Result) bool {
			id := it.Get("InstanceTypeId").String()
			cpu := int(it.Get("CpuCoreCount").Int())
			if id == "" || cpu == 0 {
				return true
			}
			rows = append(rows, pricetable.Row{
				Provider: string(core.CloudAlibaba),
				SKU:      "type/" + region + "/" + id,
				Region:   region,
				FlavorID: id,
				Attributes: map[string]string{
					attrKind: kindType,
					"family": it.Get("InstanceTypeFamily").String(),
				},
				CPU: cpu,
				RAM: core.GiBToMiB(it.Get("MemorySize").Float()),
			})
			return true
		})

		next := body.Get("NextToken").String()
		if next == "" {
			return rows, nil
		}
		query.Set("NextToken", next)
	}
}

func (a *Adapter) price(ctx context.Context, region string, spec instanceType) (*core.FlavorRecord, error) {
	rows, err := pricetable.ReadThrough(ctx, a.table, pricetable.Filter{
		Provider:   string(core.CloudAlibaba),
		Region:     region,
		FlavorID:   spec.ID,
		Attributes: map[string]string{attrKind: kindPrice},
	}, a.freshness, func(ctx context.Context) ([]pricetable.Row, error) {
		return a.describePrice(ctx, region, spec)
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0].Price <= 0 {
		return nil, core.NewNotFoundError(core.CloudAlibaba, fmt.Sprintf("no pay-as-you-go price for %s in %s", spec.ID, region))
	}
	return &core.FlavorRecord{
		Provider: core.CloudAlibaba,
		Region:   region,
		FlavorID: spec.ID,
		Family:   a.Family(spec.ID),
		CPU:      spec.CPU,
		RAM:      spec.RAM,
		Price:    rows[0].Price,
		Currency: rows[0].Currency,
	}, nil
}

func (a *Adapter) describePrice(ctx context.Context, region string, spec instanceType) ([]pricetable.Row, error) {
	resp, err := a.client.DoRaw(ctx, restclient.Request{
		Operation: "describe_price",
		Endpoint:  "/",
		Query: url.Values{
			"Action":       {"DescribePrice"},
			"RegionId":     {region},
			"ResourceType": {"instance"},
			"InstanceType": {spec.ID},
			"PriceUnit":    {"Hour"},
		},
	})
	if err != nil {
		return nil, mapError(err)
	}
	price := gjson.GetBytes(resp.Body, "PriceInfo.Price")
	return []pricetable.Row{{
		Provider:   string(core.CloudAlibaba),
		SKU:        "price/" + region + "/" + spec.ID,
		Region:     region,
		FlavorID:   spec.ID,
		Attributes: map[string]string{attrKind: kindPrice},
		CPU:        spec.CPU,
		RAM:        spec.RAM,
		Price:      price.Get("TradePrice").Float(),
		Currency:   price.Get("Currency").String(),
		Unit:       "Hour",
	}}, nil
}

// mapError re-classifies gateway errors by their Code rather than HTTP status.
func mapError(err error) error {
	var typed *core.Error
	if !errors.As(err, &typed) {
		return err
	}
	code := gjson.Get(typed.Message, "Code").String()
	if code == "" {
		return err
	}
	message := code + ": " + gjson.Get(typed.Message, "Message").String()

	switch {
	case strings.HasPrefix(code, "InvalidAccessKeyId"),
		code == "SignatureDoesNotMatch",
		strings.HasPrefix(code, "Forbidden"),
		code == "IncompleteSignature":
		return core.NewCredentialsInvalidError(core.CloudAlibaba, message, err)
	case strings.HasPrefix(code, "InvalidRegionId"),
		strings.HasPrefix(code, "InvalidParameter"),
		strings.HasPrefix(code, "MissingParameter"):
		e := core.NewInvalidArgumentError(message, err)
		e.Provider = string(core.CloudAlibaba)
		return e
	case strings.HasPrefix(code, "InvalidInstanceType"),
		strings.HasSuffix(code, ".NotFound"):
		e := core.NewNotFoundError(core.CloudAlibaba, message)
		e.Err = err
		return e
	case strings.HasPrefix(code, "Throttling"),
		code == "ServiceUnavailable",
		code == "InternalError":
		return core.NewUpstreamUnavailableError(core.CloudAlibaba, message, err)
	default:
		return err
	}
}
