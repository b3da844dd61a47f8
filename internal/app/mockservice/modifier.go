package mockservice

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/tidwall/sjson"
)

var indexSegment = regexp.MustCompile(`\[(\d+)\]`)

// interactionModifier overrides part of the served response for an
// interaction, on every request or only on the given attempt.
type interactionModifier struct {
	Interaction string          `json:"interaction"`
	Path        string          `json:"path"`
	Value       json.RawMessage `json:"value"`
	Attempt     *int            `json:"attempt"`
}

func loadModifier(data []byte) (*interactionModifier, error) {
	modifier := &interactionModifier{}
	if err := json.Unmarshal(data, modifier); err != nil {
		return nil, errors.Wrap(err, "unable to parse modifier from data")
	}
	if err := modifier.validate(); err != nil {
		return nil, err
	}
	return modifier, nil
}

func (m *interactionModifier) validate() error {
	if m.Path != "$.status" && !strings.HasPrefix(m.Path, "$.body.") {
		return errors.Errorf("invalid path: %s, only $.status and $.body.* can be modified", m.Path)
	}
	if len(m.Value) == 0 {
		return errors.New("modifier has no value")
	}
	if m.Path == "$.status" {
		if _, err := m.statusCode(); err != nil {
			return err
		}
	}
	return nil
}

func (m *interactionModifier) Key() string {
	return strings.Join([]string{m.Interaction, m.Path}, "_")
}

func (m *interactionModifier) appliesTo(attempt int) bool {
	return m.Attempt == nil || *m.Attempt == attempt
}

// statusCode accepts the status as a number or a numeric string.
func (m *interactionModifier) statusCode() (int, error) {
	var code int
	if err := json.Unmarshal(m.Value, &code); err == nil {
		return code, nil
	}
	var s string
	if err := json.Unmarshal(m.Value, &s); err != nil {
		return 0, errors.Errorf("invalid status code %s", m.Value)
	}
	code, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Errorf("invalid status code %q", s)
	}
	return code, nil
}

// sjsonPath converts $.body.items[0].name to items.0.name.
func (m *interactionModifier) sjsonPath() string {
	p := strings.TrimPrefix(m.Path, "$.body.")
	return indexSegment.ReplaceAllString(p, ".$1")
}

type interactionModifiers struct {
	mu        sync.RWMutex
	modifiers map[string]*interactionModifier
}

func newInteractionModifiers() *interactionModifiers {
	return &interactionModifiers{modifiers: map[string]*interactionModifier{}}
}

func (im *interactionModifiers) AddModifier(modifier *interactionModifier) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.modifiers[modifier.Key()] = modifier
}

func (im *interactionModifiers) modifyBody(b []byte, attempt int) ([]byte, error) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	for _, m := range im.modifiers {
		if m.Path == "$.status" || !m.appliesTo(attempt) {
			continue
		}
		var err error
		if b, err = sjson.SetRawBytes(b, m.sjsonPath(), m.Value); err != nil {
			return nil, errors.Wrapf(err, "unable to apply modifier %s", m.Path)
		}
	}
	return b, nil
}

func (im *interactionModifiers) modifyStatusCode(attempt int) (bool, int) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	for _, m := range im.modifiers {
		if m.Path != "$.status" || !m.appliesTo(attempt) {
			continue
		}
		if code, err := m.statusCode(); err == nil {
			return true, code
		}
	}
	return false, 0
}
