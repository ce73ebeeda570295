package fhir

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ClinTerm-Intelligence/pkg/errors"
)

const testValueSet = "http://snomed.info/sct/900000000000207008/version/20230630?fhir_vs"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := NewClient(Config{ServerURL: server.URL + "/", ValueSetURL: testValueSet, Count: 20}, nil, nil)
	require.NoError(t, err)
	return c
}

func TestExpand_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ValueSet/$expand", r.URL.Path)
		assert.Equal(t, testValueSet, r.URL.Query().Get("url"))
		assert.Equal(t, "heart attack", r.URL.Query().Get("filter"))
		assert.Equal(t, "20", r.URL.Query().Get("count"))
		assert.Equal(t, "application/fhir+json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{
			"resourceType": "ValueSet",
			"expansion": {"total": 3, "contains": [
				{"system": "http://snomed.info/sct", "code": "22298006", "display": "Myocardial infarction"},
				{"system": "http://snomed.info/sct", "code": "", "display": "broken"},
				{"system": "http://snomed.info/sct", "code": "57054005", "display": "Acute myocardial infarction"}
			]}
		}`))
	})

	got, err := c.Expand(context.Background(), "heart attack")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "22298006", got[0].Code)
	assert.Equal(t, "Myocardial infarction", got[0].Display)
	assert.Equal(t, "http://snomed.info/sct", got[0].System)
	assert.Equal(t, "57054005", got[1].Code)
}

func TestExpand_NoExpansion(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"resourceType":"ValueSet","expansion":{"total":0}}`))
	})
	got, err := c.Expand(context.Background(), "xyzzy")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExpand_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   errors.ErrorCode
		detail string
	}{
		{"operation outcome", http.StatusBadRequest,
			`{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"invalid","diagnostics":"bad filter"}]}`,
			errors.ErrCodeTerminologyBadStatus, "bad filter"},
		{"server error", http.StatusInternalServerError, "oops", errors.ErrCodeTerminologyBadStatus, "oops"},
		{"malformed", http.StatusOK, `{"resourceType":`, errors.ErrCodeTerminologyDecode, ""},
		{"wrong resource", http.StatusOK, `{"resourceType":"Bundle"}`, errors.ErrCodeTerminologyDecode, "Bundle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := c.Expand(context.Background(), "fever")
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
			assert.Contains(t, err.Error(), tt.detail)
		})
	}
}

func TestExpandURL_Encoding(t *testing.T) {
	c, err := NewClient(Config{ServerURL: "https://tx.example.org/fhir", ValueSetURL: testValueSet, Language: "en"}, nil, nil)
	require.NoError(t, err)

	u, err := url.Parse(c.ExpandURL("crohn's & colitis"))
	require.NoError(t, err)
	assert.Equal(t, "/fhir/ValueSet/$expand", u.Path)
	assert.Equal(t, "crohn's & colitis", u.Query().Get("filter"))
	assert.Equal(t, "en", u.Query().Get("displayLanguage"))
	assert.Empty(t, u.Query().Get("count"))
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{ValueSetURL: testValueSet}, nil, nil)
	assert.True(t, errors.IsConfig(err))
	_, err = NewClient(Config{ServerURL: "http://x"}, nil, nil)
	assert.True(t, errors.IsConfig(err))
}

func TestExpand_Unreachable(t *testing.T) {
	c, err := NewClient(Config{ServerURL: "http://127.0.0.1:1", ValueSetURL: testValueSet}, nil, nil)
	require.NoError(t, err)
	_, err = c.Expand(context.Background(), "fever")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeTerminologyUnavailable))
}
