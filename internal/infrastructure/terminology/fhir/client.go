// Package fhir is a minimal FHIR terminology client that expands a SNOMED CT
// ValueSet against a free-text filter.
package fhir

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/turtacn/ClinTerm-Intelligence/internal/domain/coding"
	"github.com/turtacn/ClinTerm-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

const (
	contentTypeFHIR = "application/fhir+json"
	maxErrorBody    = 512
)

// Config configures Client.
type Config struct {
	// ServerURL is the FHIR base, e.g. https://snowstorm.ihtsdotools.org/fhir.
	ServerURL string
	// ValueSetURL is the implicit or explicit valueset to expand.
	ValueSetURL string
	// Count caps the number of returned concepts. Zero leaves it to the server.
	Count int
	// Timeout bounds the underlying HTTP client.
	Timeout time.Duration
	// Language, when set, is sent as displayLanguage.
	Language string
}

// valueSet is the subset of a FHIR ValueSet resource read from $expand.
type valueSet struct {
	ResourceType string     `json:"resourceType"`
	Expansion    *expansion `json:"expansion"`
}

type expansion struct {
	Total    int        `json:"total"`
	Contains []contains `json:"contains"`
}

type contains struct {
	System  string `json:"system"`
	Code    string `json:"code"`
	Display string `json:"display"`
	Version string `json:"version,omitempty"`
}

// operationOutcome is returned by servers on failure.
type operationOutcome struct {
	ResourceType string `json:"resourceType"`
	Issue        []struct {
		Severity    string `json:"severity"`
		Code        string `json:"code"`
		Diagnostics string `json:"diagnostics"`
	} `json:"issue"`
}

// Client expands a fixed ValueSet. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     logging.Logger
}

// NewClient validates cfg and returns a Client. A nil httpClient gets one
// bounded by cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, logger logging.Logger) (*Client, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "fhir: server url is required")
	}
	if _, err := url.Parse(cfg.ServerURL); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidConfig, "fhir: invalid server url")
	}
	if cfg.ValueSetURL == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfig, "fhir: valueset url is required")
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	return &Client{httpClient: httpClient, cfg: cfg, logger: logger.Named("fhir")}, nil
}

// ExpandURL builds the $expand request URL for filter.
func (c *Client) ExpandURL(filter string) string {
	q := url.Values{}
	q.Set("url", c.cfg.ValueSetURL)
	q.Set("filter", filter)
	if c.cfg.Count > 0 {
		q.Set("count", strconv.Itoa(c.cfg.Count))
	}
	if c.cfg.Language != "" {
		q.Set("displayLanguage", c.cfg.Language)
	}
	return c.cfg.ServerURL + "/ValueSet/$expand?" + q.Encode()
}

// Expand returns the concepts matching filter in server rank order. An
// expansion without concepts yields an empty slice and no error.
func (c *Client) Expand(ctx context.Context, filter string) ([]coding.Candidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ExpandURL(filter), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTerminologyUnavailable, "fhir: creating request")
	}
	req.Header.Set("Accept", contentTypeFHIR)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTerminologyUnavailable, "fhir: expand request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTerminologyUnavailable, "fhir: reading response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrCodeTerminologyBadStatus, "fhir: status %d: %s", resp.StatusCode, describeFailure(raw))
	}

	var vs valueSet
	if err := json.Unmarshal(raw, &vs); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTerminologyDecode, "fhir: decoding expansion")
	}
	if vs.ResourceType != "" && vs.ResourceType != "ValueSet" {
		return nil, errors.Newf(errors.ErrCodeTerminologyDecode, "fhir: unexpected resource type %q", vs.ResourceType)
	}
	if vs.Expansion == nil {
		return []coding.Candidate{}, nil
	}

	out := make([]coding.Candidate, 0, len(vs.Expansion.Contains))
	for _, item := range vs.Expansion.Contains {
		if item.Code == "" {
			continue
		}
		out = append(out, coding.Candidate{System: item.System, Code: item.Code, Display: item.Display})
	}
	c.logger.Debug("expanded valueset", logging.String("filter", filter), logging.Int("candidates", len(out)))
	return out, nil
}

// describeFailure extracts OperationOutcome diagnostics when present.
func describeFailure(raw []byte) string {
	var oo operationOutcome
	if json.Unmarshal(raw, &oo) == nil && oo.ResourceType == "OperationOutcome" && len(oo.Issue) > 0 {
		parts := make([]string, 0, len(oo.Issue))
		for _, is := range oo.Issue {
			parts = append(parts, is.Severity+": "+is.Diagnostics)
		}
		return strings.Join(parts, "; ")
	}
	if len(raw) > maxErrorBody {
		return string(raw[:maxErrorBody]) + "..."
	}
	return string(raw)
}
