package alibaba

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	apiVersion       = "2014-05-26"
	signatureMethod  = "HMAC-SHA1"
	signatureVersion = "1.0"
	timestampLayout  = "2006-01-02T15:04:05Z"
)

// signer adds the RPC common parameters and the request signature.
type signer struct {
	accessKeyID     string
	accessKeySecret string
	now             func() time.Time
}

func (s *signer) sign(_ context.Context, req *http.Request) error {
	params := req.URL.Query()
	params.Set("Format", "JSON")
	params.Set("Version", apiVersion)
	params.Set("AccessKeyId", s.accessKeyID)
	params.Set("SignatureMethod", signatureMethod)
	params.Set("SignatureVersion", signatureVersion)
	params.Set("SignatureNonce", uuid.NewString())
	params.Set("Timestamp", s.now().UTC().Format(timestampLayout))
	params.Del("Signature")

	params.Set("Signature", signature(req.Method, params, s.accessKeySecret))
	req.URL.RawQuery = canonicalQuery(params)
	return nil
}

func signature(method string, params url.Values, secret string) string {
	stringToSign := method + "&" + percentEncode("/") + "&" + percentEncode(canonicalQuery(params))
	mac := hmac.New(sha1.New, []byte(secret+"&"))
	mac.Write([]byte(stringToSign))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func canonicalQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(params.Get(k)))
	}
	return strings.Join(pairs, "&")
}

// percentEncode is RFC 3986 encoding as the RPC gateway expects it.
func percentEncode(s string) string {
	s = url.QueryEscape(s)
	s = strings.ReplaceAll(s, "+", "%20")
	s = strings.ReplaceAll(s, "*", "%2A")
	return strings.ReplaceAll(s, "%7E", "~")
}
