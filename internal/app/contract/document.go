package contract

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/form3tech-oss/pactkit/internal/app/matching"
	"github.com/pkg/errors"
)

type document struct {
	Consumer     Pacticipant           `json:"consumer"`
	Provider     Pacticipant           `json:"provider"`
	Interactions []interactionDocument `json:"interactions"`
	Metadata     metadataDocument      `json:"metadata"`
}

type metadataDocument struct {
	PactSpecification       *PactSpecification `json:"pactSpecification,omitempty"`
	LegacyPactSpecification *PactSpecification `json:"pact-specification,omitempty"`
}

type interactionDocument struct {
	Description    string           `json:"description"`
	ProviderState  string           `json:"providerState,omitempty"`
	ProviderStates []ProviderState  `json:"providerStates,omitempty"`
	Request        requestDocument  `json:"request"`
	Response       responseDocument `json:"response"`
}

type requestDocument struct {
	Method        string          `json:"method"`
	Path          string          `json:"path"`
	Query         json.RawMessage `json:"query,omitempty"`
	Headers       json.RawMessage `json:"headers,omitempty"`
	Body          *matching.Value `json:"body,omitempty"`
	MatchingRules json.RawMessage `json:"matchingRules,omitempty"`
}

type responseDocument struct {
	Status        int             `json:"status"`
	Headers       json.RawMessage `json:"headers,omitempty"`
	Body          *matching.Value `json:"body,omitempty"`
	MatchingRules json.RawMessage `json:"matchingRules,omitempty"`
}

// IsV3 reports whether version names pact specification 3 or later. An
// unparseable version is treated as the default.
func IsV3(version string) bool {
	if version == "" {
		version = DefaultSpecificationVersion
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return true
	}
	return v.Major() >= 3
}

func (c Contract) MarshalJSON() ([]byte, error) {
	version := c.Metadata.PactSpecification.Version
	if version == "" {
		version = DefaultSpecificationVersion
	}
	v3 := IsV3(version)

	doc := document{
		Consumer:     c.Consumer,
		Provider:     c.Provider,
		Interactions: make([]interactionDocument, 0, len(c.Interactions)),
		Metadata:     metadataDocument{PactSpecification: &PactSpecification{Version: version}},
	}
	for _, i := range c.Interactions {
		doc.Interactions = append(doc.Interactions, newInteractionDocument(i, v3))
	}
	return json.Marshal(doc)
}

func (c *Contract) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "unable to parse contract document")
	}

	out := Contract{
		Consumer: doc.Consumer,
		Provider: doc.Provider,
	}
	switch {
	case doc.Metadata.PactSpecification != nil:
		out.Metadata.PactSpecification = *doc.Metadata.PactSpecification
	case doc.Metadata.LegacyPactSpecification != nil:
		out.Metadata.PactSpecification = *doc.Metadata.LegacyPactSpecification
	default:
		out.Metadata.PactSpecification.Version = SpecificationV2
	}

	for n, d := range doc.Interactions {
		i, err := d.interaction()
		if err != nil {
			return errors.Wrapf(err, "unable to parse interaction %d (%q)", n, d.Description)
		}
		out.Interactions = append(out.Interactions, i)
	}
	*c = out
	return nil
}

func newInteractionDocument(i Interaction, v3 bool) interactionDocument {
	doc := interactionDocument{
		Description: i.Description,
		Request: requestDocument{
			Method: i.Request.Method,
			Path:   i.Request.Path,
		},
		Response: responseDocument{
			Status: i.Response.Status,
		},
	}

	switch {
	case len(i.ProviderStates) == 0:
	case !v3 && len(i.ProviderStates) == 1 && len(i.ProviderStates[0].Params) == 0:
		doc.ProviderState = i.ProviderStates[0].Name
	default:
		doc.ProviderStates = i.ProviderStates
	}

	if len(i.Request.Query) > 0 {
		if v3 {
			doc.Request.Query, _ = json.Marshal(i.Request.Query)
		} else {
			doc.Request.Query, _ = json.Marshal(url.Values(i.Request.Query).Encode())
		}
	}
	if len(i.Request.Headers) > 0 {
		doc.Request.Headers, _ = json.Marshal(i.Request.Headers)
	}
	if len(i.Response.Headers) > 0 {
		doc.Response.Headers, _ = json.Marshal(i.Response.Headers)
	}
	if i.Request.Body.IsDefined() {
		body := i.Request.Body
		doc.Request.Body = &body
	}
	if i.Response.Body.IsDefined() {
		body := i.Response.Body
		doc.Response.Body = &body
	}
	doc.Request.MatchingRules = marshalRules(i.Request.MatchingRules, v3)
	doc.Response.MatchingRules = marshalRules(i.Response.MatchingRules, v3)
	return doc
}

func marshalRules(rules matching.Rules, v3 bool) json.RawMessage {
	if len(rules) == 0 {
		return nil
	}
	var (
		data []byte
		err  error
	)
	if !v3 && rules.SingleMatcher() {
		data, err = rules.MarshalV2()
	} else {
		data, err = rules.MarshalV3()
	}
	if err != nil {
		return nil
	}
	return data
}

func (d interactionDocument) interaction() (Interaction, error) {
	i := Interaction{
		Description:    d.Description,
		ProviderStates: d.ProviderStates,
		Request: Request{
			Method: d.Request.Method,
			Path:   d.Request.Path,
		},
		Response: Response{
			Status: d.Response.Status,
		},
	}
	if d.ProviderState != "" && len(i.ProviderStates) == 0 {
		i.ProviderStates = []ProviderState{{Name: d.ProviderState}}
	}

	var err error
	if i.Request.Query, err = parseQuery(d.Request.Query); err != nil {
		return Interaction{}, err
	}
	if i.Request.Headers, err = parseHeaders(d.Request.Headers); err != nil {
		return Interaction{}, errors.Wrap(err, "request headers")
	}
	if i.Response.Headers, err = parseHeaders(d.Response.Headers); err != nil {
		return Interaction{}, errors.Wrap(err, "response headers")
	}
	if d.Request.Body != nil {
		i.Request.Body = *d.Request.Body
	}
	if d.Response.Body != nil {
		i.Response.Body = *d.Response.Body
	}
	if i.Request.MatchingRules, err = parseRules(d.Request.MatchingRules); err != nil {
		return Interaction{}, errors.Wrap(err, "request")
	}
	if i.Response.MatchingRules, err = parseRules(d.Response.MatchingRules); err != nil {
		return Interaction{}, errors.Wrap(err, "response")
	}
	return i, nil
}

func parseRules(raw json.RawMessage) (matching.Rules, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	rules, err := matching.ParseRules(raw)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}
	return rules, nil
}

// parseQuery accepts the v2 string form ("a=1&b=2") and the v3 map form, with
// either single values or lists.
func parseQuery(raw json.RawMessage) (map[string][]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil, nil
		}
		values, err := url.ParseQuery(asString)
		if err != nil {
			return nil, errors.Wrap(err, "invalid query string")
		}
		return values, nil
	}

	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, errors.Wrap(err, "invalid query")
	}
	out := make(map[string][]string, len(asMap))
	for k, v := range asMap {
		switch val := v.(type) {
		case string:
			out[k] = []string{val}
		case []interface{}:
			for _, item := range val {
				s, ok := item.(string)
				if !ok {
					return nil, errors.Errorf("query parameter %q has a non string value", k)
				}
				out[k] = append(out[k], s)
			}
		default:
			return nil, errors.Errorf("query parameter %q has an invalid value", k)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// parseHeaders accepts string values and v3 style lists, which are joined
// with ", ".
func parseHeaders(raw json.RawMessage) (map[string]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, errors.Wrap(err, "invalid headers")
	}
	out := make(map[string]string, len(asMap))
	for k, v := range asMap {
		switch val := v.(type) {
		case string:
			out[k] = val
		case []interface{}:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				s, ok := item.(string)
				if !ok {
					return nil, errors.Errorf("header %q has a non string value", k)
				}
				parts = append(parts, s)
			}
			out[k] = strings.Join(parts, ", ")
		default:
			return nil, errors.Errorf("header %q has an invalid value", k)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// sortedKeys is used wherever header or query iteration must be stable.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON writes a single interaction in the v3 document form.
func (i Interaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(newInteractionDocument(i, true))
}

// UnmarshalJSON accepts a single interaction in either the v2 or v3 form.
func (i *Interaction) UnmarshalJSON(data []byte) error {
	var doc interactionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "unable to parse interaction")
	}
	parsed, err := doc.interaction()
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
