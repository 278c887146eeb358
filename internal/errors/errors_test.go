package errors

import (
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIs_MatchesByCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("chunk 3: %w", ResponseNotFound("no generateAudioFiles response"))

	assert.True(t, Is(err, ErrResponseNotFound))
	assert.False(t, Is(err, ErrSynthesisTimeout))
}

func TestWithCause_KeepsCode(t *testing.T) {
	err := ErrIO.WithCause(io.ErrShortWrite)

	assert.True(t, Is(err, ErrIO))
	assert.True(t, Is(err, io.ErrShortWrite))
	assert.Contains(t, err.Error(), "short write")
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeInvalidConfiguration, http.StatusBadRequest},
		{CodeValidation, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeSessionStartup, http.StatusBadGateway},
		{CodeResponseNotFound, http.StatusBadGateway},
		{CodeDecode, http.StatusBadGateway},
		{CodeSynthesisTimeout, http.StatusGatewayTimeout},
		{CodeIO, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}
