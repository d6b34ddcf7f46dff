package gapfill

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/autopress/llm"
	"github.com/c360studio/autopress/spec"
)

// refillProvider speaks the trivial {"content": ...} format served by the
// httptest servers in this package.
type refillProvider struct{}

func (refillProvider) Name() string                { return "refill-test" }
func (refillProvider) BuildURL(base string) string { return base }
func (refillProvider) SetHeaders(_ *http.Request)  {}

func (refillProvider) BuildRequestBody(model string, messages []llm.Message, _ *float64, _ int) ([]byte, error) {
	return json.Marshal(map[string]any{"model": model, "messages": messages})
}

func (refillProvider) ParseResponse(body []byte, _ string) (*llm.Response, error) {
	var resp struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return &llm.Response{Content: resp.Content}, nil
}

func init() {
	llm.RegisterProvider(refillProvider{})
}

func newFiller(t *testing.T, url string, opts ...Option) *Filler {
	t.Helper()
	registry := llm.NewRegistry(
		map[llm.Capability][]string{llm.CapabilityExtraction: {"ep"}},
		map[string]*llm.EndpointConfig{
			"ep": {Provider: "refill-test", URL: url, Model: "m"},
		},
	)
	client := llm.NewClient(registry, llm.WithRetryConfig(llm.RetryConfig{
		MaxAttempts: 1, BackoffBase: 1, BackoffMultiplier: 1, MaxBackoff: 1,
	}))
	return NewFiller(client, opts...)
}

// sparseRecord has 2 of 18 fields filled, well under any threshold.
func sparseRecord() spec.Record {
	r := spec.NewRecord()
	r.SetIfUnfilled(spec.FieldMake, "ZEEKR")
	r.SetIfUnfilled(spec.FieldModel, "7X")
	return r
}

func TestRefillSkipsAboveThreshold(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	f := newFiller(t, server.URL, WithThreshold(10))
	record := sparseRecord()

	result := f.Refill(context.Background(), record, "article", "transcript")
	assert.False(t, result.Triggered)
	assert.Equal(t, int64(0), calls.Load(), "no LLM call above threshold")
	assert.Equal(t, result.CoverageBefore, result.CoverageAfter)
}

func TestRefillFillsMissingFieldsOnly(t *testing.T) {
	reply := `Here you go:
` + "```json\n" + `{
  "horsepower": "435 HP",
  "model": "9X",
  "range": "705 km",
  "price": "Not specified"
}` + "\n```"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"content": %q}`, reply)
	}))
	defer server.Close()

	f := newFiller(t, server.URL)
	record := sparseRecord()

	result := f.Refill(context.Background(), record, "article text", "transcript text")
	require.True(t, result.Triggered)
	assert.Empty(t, result.Err)

	// New fields land, the existing model value is untouched, and the
	// sentinel "Not specified" never counts as a fill.
	assert.Equal(t, "435 HP", record.Get(spec.FieldHorsepower))
	assert.Equal(t, "705 km", record.Get(spec.FieldRange))
	assert.Equal(t, "7X", record.Get(spec.FieldModel))
	assert.False(t, record.Filled(spec.FieldPrice))

	assert.ElementsMatch(t, []spec.FieldKey{spec.FieldHorsepower, spec.FieldRange}, result.FieldsFilled)
	assert.Greater(t, result.CoverageAfter.Percent, result.CoverageBefore.Percent)
	assert.Equal(t, "refill-test", result.Provider)
}

func TestRefillFailsOpenOnHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := newFiller(t, server.URL)
	record := sparseRecord()
	want := record.Clone()

	result := f.Refill(context.Background(), record, "t", "a")
	assert.True(t, result.Triggered)
	assert.NotEmpty(t, result.Err)
	assert.Equal(t, want, record, "record unchanged on failure")
	assert.Equal(t, result.CoverageBefore, result.CoverageAfter)
}

func TestRefillFailsOpenOnGarbageReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"content": "I am sorry, I cannot help with that."}`)
	}))
	defer server.Close()

	f := newFiller(t, server.URL)
	record := sparseRecord()
	want := record.Clone()

	result := f.Refill(context.Background(), record, "t", "a")
	assert.True(t, result.Triggered)
	assert.NotEmpty(t, result.Err)
	assert.Equal(t, want, record)
}

func TestRefillIgnoresUnknownFieldKeys(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"content": "{\"warp_drive\": \"yes\", \"torque\": \"640 Nm\"}"}`)
	}))
	defer server.Close()

	f := newFiller(t, server.URL)
	record := sparseRecord()

	result := f.Refill(context.Background(), record, "t", "a")
	assert.Equal(t, []spec.FieldKey{spec.FieldTorque}, result.FieldsFilled)
	assert.Equal(t, "640 Nm", record.Get(spec.FieldTorque))
}

func TestBuildMessagesNamesOnlyMissingFields(t *testing.T) {
	missing := []spec.FieldKey{spec.FieldHorsepower, spec.FieldTorque}
	msgs := buildMessages(missing, "the article", "the transcript")

	require.Len(t, msgs, 2)
	prompt := msgs[1].Content
	assert.Contains(t, prompt, "horsepower")
	assert.Contains(t, prompt, "torque")
	assert.NotContains(t, prompt, "- make:")
	assert.Contains(t, prompt, "the transcript")
	assert.Contains(t, prompt, "the article")
}

func TestBuildMessagesLabelsExcerpts(t *testing.T) {
	msgs := buildMessages([]spec.FieldKey{spec.FieldRange},
		"# Draft\n\nThe range is 705 km.", "today we drive the 7X")

	prompt := msgs[1].Content
	articleAt := strings.Index(prompt, "--- ARTICLE ---")
	transcriptAt := strings.Index(prompt, "--- TRANSCRIPT ---")
	require.NotEqual(t, -1, articleAt)
	require.NotEqual(t, -1, transcriptAt)

	// Each block sits under its own label.
	assert.Greater(t, strings.Index(prompt, "705 km"), articleAt)
	assert.Less(t, strings.Index(prompt, "705 km"), transcriptAt)
	assert.Greater(t, strings.Index(prompt, "today we drive"), transcriptAt)
}

func TestTruncate(t *testing.T) {
	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, truncate(string(long), 4000), 4000)
	assert.Equal(t, "short", truncate("  short  ", 4000))
}
