package contract

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var unsafeFileChars = regexp.MustCompile(`[^a-z0-9_.\-]+`)

// Parse decodes a contract document. It does not validate it.
func Parse(data []byte) (*Contract, error) {
	c := &Contract{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}

func ReadFile(path string) (*Contract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read contract %s", path)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load contract %s", path)
	}
	return c, nil
}

// FileName is the conventional file name, <consumer>-<provider>.json.
func (c *Contract) FileName() string {
	name := strings.ToLower(c.Consumer.Name + "-" + c.Provider.Name)
	name = unsafeFileChars.ReplaceAllString(name, "_")
	return name + ".json"
}

// Merge combines the interactions of incoming into existing for the same
// consumer and provider. Identical interactions are collapsed; an interaction
// whose description is already used with different content is a
// ValidationError.
func Merge(existing, incoming *Contract) (*Contract, error) {
	if existing.Consumer != incoming.Consumer || existing.Provider != incoming.Provider {
		return nil, &ValidationError{Problems: []string{
			"cannot merge contracts between different consumer/provider pairs",
		}}
	}

	merged := New(existing.Consumer.Name, existing.Provider.Name, existing.Interactions...)
	merged.Metadata = incoming.Metadata
	for _, i := range incoming.Interactions {
		if current, ok := merged.Interaction(i.Description); ok {
			if !current.Equal(i) {
				return nil, &ValidationError{Problems: []string{
					"interaction " + i.Description + " already exists with a different request or response",
				}}
			}
			continue
		}
		merged = merged.WithInteraction(i)
	}
	return merged, merged.Validate()
}

// WriteFile writes the contract into dir, merging with an existing file for
// the same consumer/provider pair. It returns the written path.
func (c *Contract) WriteFile(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "unable to create pact directory %s", dir)
	}
	path := filepath.Join(dir, c.FileName())

	toWrite := c
	if _, err := os.Stat(path); err == nil {
		existing, err := ReadFile(path)
		if err != nil {
			return "", err
		}
		log.WithField("path", path).Info("merging with existing pact file")
		if toWrite, err = Merge(existing, c); err != nil {
			return "", err
		}
	} else if err := c.Validate(); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(toWrite, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "unable to encode contract")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "unable to write contract %s", path)
	}
	log.WithFields(log.Fields{
		"path":         path,
		"interactions": len(toWrite.Interactions),
	}).Info("pact file written")
	return path, nil
}
