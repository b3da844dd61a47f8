package contract

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/form3tech-oss/pactkit/internal/app/matching"
	"github.com/pkg/errors"
)

const (
	mediaTypeJSON = "application/json"
	mediaTypeText = "text/plain; charset=utf-8"
)

// ContentType returns the declared Content-Type header, if any.
func (r Request) ContentType() string {
	return headerValue(r.Headers, "Content-Type")
}

func (r Response) ContentType() string {
	return headerValue(r.Headers, "Content-Type")
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// encodeBody renders a body literally. JSON content types and untyped
// containers are written as JSON, strings under any other content type as
// raw text. The second return value is the content type to default to when
// none is declared.
func encodeBody(body matching.Value, contentType string) ([]byte, string, error) {
	if !body.IsDefined() {
		return nil, "", nil
	}
	if body.Kind() == matching.KindString && contentType != "" && !matching.IsJSONContentType(contentType) {
		return []byte(body.StringValue()), "", nil
	}
	if body.Kind() == matching.KindString && contentType == "" {
		return []byte(body.StringValue()), mediaTypeText, nil
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, "", errors.Wrap(err, "unable to encode body")
	}
	return data, mediaTypeJSON, nil
}

// BodyBytes returns the literal request body and the content type to use
// when the request declares none.
func (r Request) BodyBytes() ([]byte, string, error) {
	return encodeBody(r.Body, r.ContentType())
}

func (r Response) BodyBytes() ([]byte, string, error) {
	return encodeBody(r.Body, r.ContentType())
}

// URL resolves the request path and query against baseURL.
func (r Request) URL(baseURL string) (*url.URL, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid base url %q", baseURL)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + r.Path
	u.RawPath = ""
	if len(r.Query) > 0 {
		u.RawQuery = url.Values(r.Query).Encode()
	}
	return u, nil
}

// HTTPRequest renders the request as a concrete http.Request against
// baseURL. Only literal values are used: matching rules describe what the
// provider may receive, never what is sent.
func (r Request) HTTPRequest(ctx context.Context, baseURL string) (*http.Request, error) {
	u, err := r.URL(baseURL)
	if err != nil {
		return nil, err
	}
	body, defaultContentType, err := r.BodyBytes()
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(r.Method)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "unable to build request")
	}
	if body == nil {
		req.Body = http.NoBody
		req.ContentLength = 0
	}
	for _, k := range sortedKeys(r.Headers) {
		req.Header.Set(k, r.Headers[k])
	}
	if req.Header.Get("Content-Type") == "" && defaultContentType != "" {
		req.Header.Set("Content-Type", defaultContentType)
	}
	return req, nil
}

// WriteTo serves the response literally.
func (r Response) WriteTo(w http.ResponseWriter) error {
	body, defaultContentType, err := r.BodyBytes()
	if err != nil {
		return err
	}
	for _, k := range sortedKeys(r.Headers) {
		w.Header().Set(k, r.Headers[k])
	}
	if w.Header().Get("Content-Type") == "" && defaultContentType != "" {
		w.Header().Set("Content-Type", defaultContentType)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(r.Status)
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return errors.Wrap(err, "unable to write response body")
		}
	}
	return nil
}

// Match checks an inbound request against this request pattern.
func (r Request) Match(actual *http.Request, body []byte) matching.Result {
	result := matching.Result{}
	if !strings.EqualFold(r.Method, actual.Method) {
		result.Mismatches = append(result.Mismatches, matching.Mismatch{
			Path:     "$.method",
			Expected: strings.ToUpper(r.Method),
			Actual:   actual.Method,
			Message:  "expected method " + strings.ToUpper(r.Method) + " but got " + actual.Method,
		})
	}

	rules := r.MatchingRules
	result = result.Merge(matching.MatchScalar("path", matching.String(r.Path), matching.String(actual.URL.Path), rules.Select("path")))
	result = result.Merge(matching.MatchQuery(r.Query, actual.URL.Query(), rules.Select("query")))
	result = result.Merge(matching.MatchHeaders(r.Headers, actual.Header, rules.Select("header")))

	contentType := actual.Header.Get("Content-Type")
	if contentType == "" {
		contentType = r.ContentType()
	}
	return result.Merge(matching.MatchBody(r.Body, body, contentType, rules.Select("body")))
}

// Match checks an actual provider response against this response pattern.
func (r Response) Match(status int, header http.Header, body []byte) matching.Result {
	rules := r.MatchingRules
	result := matching.MatchScalar("status", matching.Int(int64(r.Status)), matching.Int(int64(status)), rules.Select("status"))
	result = result.Merge(matching.MatchHeaders(r.Headers, header, rules.Select("header")))

	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = r.ContentType()
	}
	return result.Merge(matching.MatchBody(r.Body, body, contentType, rules.Select("body")))
}
