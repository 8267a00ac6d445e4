package alibaba

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flavorwise/internal/core"
)

const testSecret = "testsecret"

type fakeECS struct {
	server     *httptest.Server
	typeCalls  atomic.Int32
	priceCalls atomic.Int32
	failCode   string
	failStatus int
}

func newFakeECS(t *testing.T) *fakeECS {
	t.Helper()
	f := &fakeECS{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := r.URL.Query()
		got := params.Get("Signature")
		params.Del("Signature")
		if got != signature(r.Method, params, testSecret) {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"Code": "SignatureDoesNotMatch", "Message": "bad signature"})
			return
		}
		if f.failCode != "" {
			w.WriteHeader(f.failStatus)
			_ = json.NewEncoder(w).Encode(map[string]string{"Code": f.failCode, "Message": "rejected", "RequestId": "req-1"})
			return
		}

		switch params.Get("Action") {
		case "DescribeInstanceTypes":
			f.typeCalls.Add(1)
			page := map[string]interface{}{}
			if params.Get("NextToken") == "" {
				page["InstanceTypes"] = map[string]interface{}{"InstanceType": []map[string]interface{}{
					{"InstanceTypeId": "ecs.g6.large", "InstanceTypeFamily": "ecs.g6", "CpuCoreCount": 2, "MemorySize": 8},
					{"InstanceTypeId": "ecs.g6.xlarge", "InstanceTypeFamily": "ecs.g6", "CpuCoreCount": 4, "MemorySize": 16},
				}}
				page["NextToken"] = "tok-2"
			} else {
				page["InstanceTypes"] = map[string]interface{}{"InstanceType": []map[string]interface{}{
					{"InstanceTypeId": "ecs.c6.xlarge", "InstanceTypeFamily": "ecs.c6", "CpuCoreCount": 4, "MemorySize": 8},
					{"InstanceTypeId": "ecs.t5-lc2m1.nano", "InstanceTypeFamily": "ecs.t5", "CpuCoreCount": 1, "MemorySize": 0.5},
				}}
			}
			_ = json.NewEncoder(w).Encode(page)
		case "DescribePrice":
			f.priceCalls.Add(1)
			assert.Equal(t, "Hour", params.Get("PriceUnit"))
			prices := map[string]float64{"ecs.g6.large": 0.107, "ecs.g6.xlarge": 0.214}
			price, ok := prices[params.Get("InstanceType")]
			if !ok {
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{"Code": "InvalidInstanceType.NotSupported", "Message": "not sold here"})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"PriceInfo": map[string]interface{}{
					"Price": map[string]interface{}{"OriginalPrice": price * 1.2, "TradePrice": price, "Currency": "USD"},
				},
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeECS) adapter(secret string) *Adapter {
	return New(Credentials{AccessKeyID: "testid", AccessKeySecret: secret}, nil, Options{Endpoint: f.server.URL})
}

func TestResolveFlavorPrice(t *testing.T) {
	f := newFakeECS(t)
	a := f.adapter(testSecret)

	rec, err := a.ResolveFlavorPrice(context.Background(), core.PriceQuery{
		ResourceType: core.ResourceInstance,
		Region:       "eu-central-1",
		FlavorID:     "ecs.g6.large",
	})
	require.NoError(t, err)
	assert.Equal(t, core.FlavorRecord{
		Provider: core.CloudAlibaba, Region: "eu-central-1", FlavorID: "ecs.g6.large", Family: "ecs.g6",
		CPU: 2, RAM: 8192, Price: 0.107, Currency: "USD",
	}, *rec)

	_, err = a.ResolveFlavorPrice(context.Background(), core.PriceQuery{Region: "eu-central-1", FlavorID: "ecs.g6.large"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.typeCalls.Load(), "two pages, fetched once")
	assert.Equal(t, int32(1), f.priceCalls.Load())
}

func TestResolveFlavorPrice_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("UnknownType", func(t *testing.T) {
		_, err := newFakeECS(t).adapter(testSecret).ResolveFlavorPrice(ctx, core.PriceQuery{Region: "eu-central-1", FlavorID: "ecs.zz.huge"})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("NotSoldInRegion", func(t *testing.T) {
		_, err := newFakeECS(t).adapter(testSecret).ResolveFlavorPrice(ctx, core.PriceQuery{Region: "eu-central-1", FlavorID: "ecs.c6.xlarge"})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("WrongSecret", func(t *testing.T) {
		_, err := newFakeECS(t).adapter("other").ResolveFlavorPrice(ctx, core.PriceQuery{Region: "eu-central-1", FlavorID: "ecs.g6.large"})
		assert.True(t, core.IsCredentialsInvalid(err))
	})

	t.Run("MissingRegion", func(t *testing.T) {
		_, err := newFakeECS(t).adapter(testSecret).ResolveFlavorPrice(ctx, core.PriceQuery{FlavorID: "ecs.g6.large"})
		assert.True(t, core.IsInvalidArgument(err))
	})

	codes := []struct {
		code   string
		status int
		kind   core.ErrorKind
	}{
		{"InvalidAccessKeyId.NotFound", http.StatusNotFound, core.ErrorKindCredentialsInvalid},
		{"Forbidden.RAM", http.StatusForbidden, core.ErrorKindCredentialsInvalid},
		{"Throttling.User", http.StatusBadRequest, core.ErrorKindUpstreamUnavailable},
		{"InvalidRegionId.NotFound", http.StatusBadRequest, core.ErrorKindInvalidArgument},
		{"UnknownError", http.StatusInternalServerError, core.ErrorKindUpstreamUnavailable},
	}
	for _, tt := range codes {
		t.Run(tt.code, func(t *testing.T) {
			f := newFakeECS(t)
			f.failCode, f.failStatus = tt.code, tt.status
			_, err := f.adapter(testSecret).ResolveFlavorPrice(ctx, core.PriceQuery{Region: "eu-central-1", FlavorID: "ecs.g6.large"})
			assert.Equal(t, tt.kind, core.KindOf(err))
		})
	}
}

func TestListCandidateFlavors(t *testing.T) {
	f := newFakeECS(t)
	got, err := f.adapter(testSecret).ListCandidateFlavors(context.Background(), core.CandidateQuery{
		ResourceType: core.ResourceInstance,
		Region:       "eu-central-1",
		CPUMin:       2,
		RAMMin:       8192,
	})
	require.NoError(t, err)

	// ecs.c6.xlarge matches the bounds but has no price in the region.
	require.Len(t, got, 2)
	assert.Equal(t, "ecs.g6.large", got[0].FlavorID)
	assert.Equal(t, "ecs.g6.xlarge", got[1].FlavorID)
	assert.Equal(t, int64(16384), got[1].RAM)
}

func TestSign(t *testing.T) {
	s := &signer{
		accessKeyID:     "testid",
		accessKeySecret: testSecret,
		now:             func() time.Time { return time.Date(2016, 2, 23, 12, 46, 24, 0, time.UTC) },
	}
	req := httptest.NewRequest(http.MethodGet, "https://ecs.aliyuncs.com/?Action=DescribeRegions", nil)
	require.NoError(t, s.sign(context.Background(), req))

	params := req.URL.Query()
	assert.Equal(t, "2016-02-23T12:46:24Z", params.Get("Timestamp"))
	assert.Equal(t, "HMAC-SHA1", params.Get("SignatureMethod"))
	assert.Equal(t, "JSON", params.Get("Format"))
	assert.NotEmpty(t, params.Get("SignatureNonce"))

	sig := params.Get("Signature")
	params.Del("Signature")
	assert.Equal(t, signature(http.MethodGet, params, testSecret), sig)
	assert.NotEqual(t, signature(http.MethodGet, params, "other"), sig)

	// Nonces differ between requests.
	again := httptest.NewRequest(http.MethodGet, "https://ecs.aliyuncs.com/?Action=DescribeRegions", nil)
	require.NoError(t, s.sign(context.Background(), again))
	assert.NotEqual(t, req.URL.Query().Get("SignatureNonce"), again.URL.Query().Get("SignatureNonce"))
}

func TestPercentEncode(t *testing.T) {
	assert.Equal(t, "a%20b%2Ac~d", percentEncode("a b*c~d"))
	assert.Equal(t, "%2F", percentEncode("/"))
	assert.Equal(t, "A=1&B=x%20y", canonicalQuery(url.Values{"B": {"x y"}, "A": {"1"}}))
}
