package providers

import (
	"net/http"
	"strings"

	"github.com/c360studio/autopress/llm"
)

// OllamaProvider serves local Ollama, vLLM and other OpenAI-compatible
// endpoints. The wire format is shared with OpenAIProvider; only the
// default URL and auth differ.
type OllamaProvider struct {
	OpenAIProvider
}

func init() {
	llm.RegisterProvider(&OllamaProvider{})
}

// Name returns the provider identifier.
func (o *OllamaProvider) Name() string {
	return "ollama"
}

// BuildURL constructs the chat completions endpoint, defaulting to the
// local Ollama port.
func (o *OllamaProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

// SetHeaders is a no-op: local endpoints need no auth.
func (o *OllamaProvider) SetHeaders(_ *http.Request) {}
