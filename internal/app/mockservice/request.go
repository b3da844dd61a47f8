package mockservice

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// RequestDocument is the recorded form of an inbound request, used in
// request history and mismatch diagnostics.
type RequestDocument struct {
	Method  string              `json:"method"`
	Path    string              `json:"path"`
	Query   map[string][]string `json:"query,omitempty"`
	Headers map[string]string   `json:"headers,omitempty"`
	Body    interface{}         `json:"body,omitempty"`
}

func newRequestDocument(req *http.Request, body []byte) RequestDocument {
	doc := RequestDocument{
		Method: req.Method,
		Path:   req.URL.Path,
	}
	if q := req.URL.Query(); len(q) > 0 {
		doc.Query = q
	}
	if len(req.Header) > 0 {
		doc.Headers = make(map[string]string, len(req.Header))
		for name, values := range req.Header {
			doc.Headers[name] = strings.Join(values, ", ")
		}
	}
	if len(body) > 0 {
		if json.Valid(body) {
			doc.Body = json.RawMessage(body)
		} else {
			doc.Body = string(body)
		}
	}
	return doc
}

func (r RequestDocument) String() string {
	if len(r.Query) == 0 {
		return r.Method + " " + r.Path
	}
	return r.Method + " " + r.Path + "?" + url.Values(r.Query).Encode()
}
