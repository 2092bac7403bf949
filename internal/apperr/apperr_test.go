package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("connection reset"), true},
		{"configuration", Configuration("missing api key"), false},
		{"language", UnsupportedLanguage("deepl", "xx"), false},
		{"unauthorized", Provider("openai", 401, errors.New("bad key")), false},
		{"not found", Provider("deepl", 404, errors.New("no route")), false},
		{"rate limited", Provider("openai", 429, errors.New("slow down")), true},
		{"server", fmt.Errorf("translate: %w", Provider("microsoft", 503, errors.New("busy"))), true},
		{"transport", Provider("google_web", 0, errors.New("eof")), true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsRetryable(tc.err), tc.name)
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := Provider("deepl", 456, errors.New("quota exceeded"))
	assert.Equal(t, "deepl: status 456: quota exceeded", err.Error())
	assert.Equal(t, "deepl: eof", Provider("deepl", 0, errors.New("eof")).Error())

	var pe *ProviderError
	assert.True(t, errors.As(fmt.Errorf("wrapped: %w", err), &pe))
	assert.Equal(t, 456, pe.StatusCode)
}
