package llm

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// EnvGogoMode is the environment variable name for mode selection.
	EnvGogoMode = "GOGO_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"
)

// NewLLMClient creates an LLM client for the given mode.
// If mode is MOCK, returns a MockClient; otherwise returns an OpenAIClient.
func NewLLMClient(mode, baseURL, apiKey string, timeout time.Duration) LLMClient {
	if strings.EqualFold(mode, ModeMock) {
		log.Info().Msg("GOGO_MODE=MOCK detected, using mock LLM client")
		return NewMockClient(nil)
	}
	return NewOpenAIClient(baseURL, apiKey, timeout)
}
