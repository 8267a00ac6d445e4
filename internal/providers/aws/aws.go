// Package aws prices EC2 and RDS flavors with the AWS Price List API.
package aws

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/pricing/types"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"

	"flavorwise/internal/core"
	"flavorwise/internal/observability"
	"flavorwise/internal/pkg/restclient"
	"flavorwise/internal/pricetable"
)

const (
	serviceEC2 = "AmazonEC2"
	serviceRDS = "AmazonRDS"

	// The Price List API is only served from a few regions.
	pricingRegion = "us-east-1"

	defaultOS           = "Linux"
	defaultPreinstalled = "NA"
	defaultEngine       = "PostgreSQL"
	defaultDeployment   = "Single-AZ"
)

// Error codes that mean the configured keys were rejected.
var credentialErrorCodes = map[string]bool{
	"UnrecognizedClientException": true,
	"InvalidSignatureException":   true,
	"AccessDeniedException":       true,
	"ExpiredTokenException":       true,
	"InvalidClientTokenId":        true,
}

// Credentials is the AWS credential bundle.
type Credentials struct {
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
}

// PricingAPI is the subset of the pricing client the adapter calls.
type PricingAPI interface {
	GetProducts(ctx context.Context, params *pricing.GetProductsInput, optFns ...func(*pricing.Options)) (*pricing.GetProductsOutput, error)
}

// Options tunes the adapter.
type Options struct {
	Freshness time.Duration
	RateLimit float64
	Burst     int
}

// Adapter implements core.Adapter for AWS.
type Adapter struct {
	api       PricingAPI
	table     pricetable.Table
	freshness time.Duration
	limiter   *rate.Limiter
}

// New creates an adapter around an existing pricing client.
func New(api PricingAPI, table pricetable.Table, opts Options) *Adapter {
	if table == nil {
		table = pricetable.NewMemoryTable()
	}
	return &Adapter{
		api:       api,
		table:     table,
		freshness: opts.Freshness,
		limiter:   restclient.NewLimiter(opts.RateLimit, opts.Burst),
	}
}

// NewFromCredentials builds a pricing client from static keys. Empty keys
// fall back to the default credential chain.
func NewFromCredentials(ctx context.Context, creds Credentials, table pricetable.Table, opts Options) (*Adapter, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(pricingRegion)}
	if creds.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, core.NewCredentialsInvalidError(core.CloudAWS, "failed to load AWS config", err)
	}
	return New(pricing.NewFromConfig(cfg), table, opts), nil
}

// Cloud implements core.Adapter.
func (a *Adapter) Cloud() core.CloudType {
	return core.CloudAWS
}

// Family implements core.Adapter.
func (a *Adapter) Family(flavorID string) string {
	return family(flavorID)
}

type productQuery struct {
	service string
	filters map[string]string
	attrs   map[string]string
}

func newProductQuery(resourceType core.ResourceType, location, osType, preinstalled string) productQuery {
	if resourceType == core.ResourceRDSInstance {
		return productQuery{
			service: serviceRDS,
			filters: map[string]string{
				"location":         location,
				"databaseEngine":   defaultEngine,
				"deploymentOption": defaultDeployment,
			},
			attrs: map[string]string{attrService: serviceRDS, attrEngine: defaultEngine, attrDeployment: defaultDeployment},
		}
	}
	if osType == "" {
		osType = defaultOS
	}
	if preinstalled == "" {
		preinstalled = defaultPreinstalled
	}
	return productQuery{
		service: serviceEC2,
		filters: map[string]string{
			"location":        location,
			"operatingSystem": osType,
			"preInstalledSw":  preinstalled,
			"tenancy":         "Shared",
			"capacitystatus":  "Used",
		},
		attrs: map[string]string{attrService: serviceEC2, attrOS: osType, attrPreinstalled: preinstalled},
	}
}

// ResolveFlavorPrice implements core.Adapter.
func (a *Adapter) ResolveFlavorPrice(ctx context.Context, q core.PriceQuery) (*core.FlavorRecord, error) {
	location, ok := Location(q.Region)
	if !ok {
		return nil, core.NewInvalidArgumentError(fmt.Sprintf("unknown AWS region %q", q.Region), nil)
	}
	pq := newProductQuery(q.ResourceType, location, q.OSType, q.Preinstalled)
	pq.filters["instanceType"] = q.FlavorID

	rows, err := pricetable.ReadThrough(ctx, a.table, pricetable.Filter{
		Provider:   string(core.CloudAWS),
		Region:     q.Region,
		FlavorID:   q.FlavorID,
		Attributes: pq.attrs,
	}, a.freshness, func(ctx context.Context) ([]pricetable.Row, error) {
		docs, err := a.getProducts(ctx, pq.service, pq.filters)
		if err != nil {
			return nil, err
		}
		return parsePriceList(q.Region, pq.service, docs), nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range rows {
		if r.Price > 0 {
			rec := a.record(r)
			return &rec, nil
		}
	}
	return nil, core.NewNotFoundError(core.CloudAWS, fmt.Sprintf("no on-demand price for %s in %s", q.FlavorID, q.Region))
}

// ListCandidateFlavors implements core.Adapter.
func (a *Adapter) ListCandidateFlavors(ctx context.Context, q core.CandidateQuery) ([]core.FlavorRecord, error) {
	location, ok := Location(q.Region)
	if !ok {
		return nil, core.NewInvalidArgumentError(fmt.Sprintf("unknown AWS region %q", q.Region), nil)
	}
	pq := newProductQuery(q.ResourceType, location, q.OSType, "")
	scope := pq.service + "/" + q.Region
	for _, k := range []string{attrOS, attrPreinstalled, attrEngine, attrDeployment} {
		if v := pq.attrs[k]; v != "" {
			scope += "/" + v
		}
	}

	rows, err := pricetable.ReadThroughCatalog(ctx, a.table, pricetable.Filter{
		Provider:   string(core.CloudAWS),
		Region:     q.Region,
		Attributes: pq.attrs,
	}, scope, a.freshness, func(ctx context.Context) ([]pricetable.Row, error) {
		docs, err := a.getProducts(ctx, pq.service, pq.filters)
		if err != nil {
			return nil, err
		}
		return parsePriceList(q.Region, pq.service, docs), nil
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	out := make([]core.FlavorRecord, 0, len(rows))
	for _, r := range rows {
		rec := a.record(r)
		if r.Price <= 0 || seen[r.FlavorID] || !q.Matches(rec) {
			continue
		}
		seen[r.FlavorID] = true
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FlavorID < out[j].FlavorID })
	return out, nil
}

func (a *Adapter) record(r pricetable.Row) core.FlavorRecord {
	return core.FlavorRecord{
		Provider: core.CloudAWS,
		Region:   r.Region,
		FlavorID: r.FlavorID,
		Family:   family(r.FlavorID),
		CPU:      r.CPU,
		RAM:      r.RAM,
		Price:    r.Price,
		Currency: r.Currency,
	}
}

// getProducts pages through GetProducts and returns every price list document.
func (a *Adapter) getProducts(ctx context.Context, service string, filters map[string]string) ([]string, error) {
	input := &pricing.GetProductsInput{
		ServiceCode:   aws.String(service),
		FormatVersion: aws.String("aws_v1"),
		MaxResults:    aws.Int32(100),
	}
	for field, value := range filters {
		input.Filters = append(input.Filters, types.Filter{
			Field: aws.String(field),
			Type:  types.FilterTypeTermMatch,
			Value: aws.String(value),
		})
	}
	sort.Slice(input.Filters, func(i, j int) bool {
		return aws.ToString(input.Filters[i].Field) < aws.ToString(input.Filters[j].Field)
	})

	var docs []string
	for {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, core.WrapTransportError(core.CloudAWS, "get_products", err)
		}

		start := time.Now()
		out, err := a.api.GetProducts(ctx, input)
		observability.ProviderCallDuration.WithLabelValues(string(core.CloudAWS), "get_products").Observe(time.Since(start).Seconds())
		if err != nil {
			mapped := mapError(err)
			observability.ProviderCalls.WithLabelValues(string(core.CloudAWS), "get_products", string(core.KindOf(mapped))).Inc()
			return nil, mapped
		}
		observability.ProviderCalls.WithLabelValues(string(core.CloudAWS), "get_products", "ok").Inc()

		docs = append(docs, out.PriceList...)
		if out.NextToken == nil || *out.NextToken == "" {
			return docs, nil
		}
		input.NextToken = out.NextToken
	}
}

// mapError converts SDK errors into core error kinds.
func mapError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch {
		case credentialErrorCodes[code]:
			return core.NewCredentialsInvalidError(core.CloudAWS, apiErr.ErrorMessage(), err)
		case code == "NotFoundException":
			e := core.NewNotFoundError(core.CloudAWS, apiErr.ErrorMessage())
			e.Err = err
			return e
		case code == "InvalidParameterException":
			e := core.NewInvalidArgumentError(apiErr.ErrorMessage(), err)
			e.Provider = string(core.CloudAWS)
			return e
		default:
			return core.NewUpstreamUnavailableError(core.CloudAWS, code+": "+apiErr.ErrorMessage(), err)
		}
	}
	return core.WrapTransportError(core.CloudAWS, "get_products", err)
}
