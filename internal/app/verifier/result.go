package verifier

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/form3tech-oss/pactkit/internal/app/matching"
	"github.com/rodaine/table"
)

type Status string

const (
	StatusPass  Status = "pass"
	StatusFail  Status = "fail"
	StatusError Status = "error"
)

// InteractionResult is the outcome of replaying one interaction. Fail
// means the provider answered differently, Error means the interaction
// could not be exercised at all.
type InteractionResult struct {
	Description    string              `json:"description"`
	ProviderStates []string            `json:"provider_states,omitempty"`
	Status         Status              `json:"status"`
	Mismatches     []matching.Mismatch `json:"mismatches,omitempty"`
	Err            error               `json:"-"`
	Duration       time.Duration       `json:"-"`
}

func (r InteractionResult) errored(err error) InteractionResult {
	r.Status = StatusError
	r.Err = err
	return r
}

func (r InteractionResult) MarshalJSON() ([]byte, error) {
	type plain InteractionResult
	out := struct {
		plain
		Error    string  `json:"error,omitempty"`
		Duration float64 `json:"duration"`
	}{plain: plain(r), Duration: r.Duration.Seconds()}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Result is the verification outcome of one contract. Err is set when the
// contract could not be verified at all.
type Result struct {
	Consumer     string              `json:"consumer"`
	Provider     string              `json:"provider"`
	Success      bool                `json:"success"`
	Interactions []InteractionResult `json:"interactions"`
	Err          error               `json:"-"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(r)}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Counts returns the number of passed, failed and errored interactions.
func (r *Result) Counts() (passed, failed, errored int) {
	for _, i := range r.Interactions {
		switch i.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusError:
			errored++
		}
	}
	return passed, failed, errored
}

func (r *Result) Interaction(description string) (InteractionResult, bool) {
	for _, i := range r.Interactions {
		if i.Description == description {
			return i, true
		}
	}
	return InteractionResult{}, false
}

// Summary writes a human readable table of the result to w.
func (r *Result) Summary(w io.Writer) {
	headerFmt := color.New(color.FgGreen, color.Underline).SprintfFunc()
	columnFmt := color.New(color.FgYellow).SprintfFunc()

	fmt.Fprintf(w, "Verifying a pact between %s and %s\n\n", r.Consumer, r.Provider)
	if r.Err != nil {
		fmt.Fprintf(w, "%s %s\n", color.RedString("error:"), r.Err)
		return
	}

	tbl := table.New("Interaction", "Given", "Status", "Details")
	tbl.WithWriter(w).WithHeaderFormatter(headerFmt).WithFirstColumnFormatter(columnFmt)
	for _, i := range r.Interactions {
		tbl.AddRow(i.Description, strings.Join(i.ProviderStates, ", "), statusText(i.Status), details(i))
	}
	tbl.Print()

	passed, failed, errored := r.Counts()
	fmt.Fprintf(w, "\n%d interactions, %d passed, %d failed, %d errored\n", len(r.Interactions), passed, failed, errored)
}

func statusText(s Status) string {
	switch s {
	case StatusPass:
		return color.GreenString(string(s))
	case StatusFail:
		return color.RedString(string(s))
	default:
		return color.MagentaString(string(s))
	}
}

func details(i InteractionResult) string {
	if i.Err != nil {
		return i.Err.Error()
	}
	var parts []string
	for _, m := range i.Mismatches {
		parts = append(parts, m.String())
	}
	return strings.Join(parts, "; ")
}
