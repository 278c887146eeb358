package validation_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/narrator/internal/errors"
	"github.com/listenupapp/narrator/internal/validation"
)

type narrateRequest struct {
	Title     string `json:"title" validate:"max=200"`
	Text      string `json:"text" validate:"notblank"`
	Narrator  string `json:"narrator,omitempty" validate:"omitempty,narrator"`
	WordLimit int    `json:"word_limit" validate:"omitempty,min=1,max=5000"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	err := v.Validate(narrateRequest{Title: "AITA", Text: "Once upon a time.", Narrator: "snoop", WordLimit: 200})
	assert.NoError(t, err)

	// narrator and limit may be left to defaults
	err = v.Validate(narrateRequest{Text: "Hello."})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       narrateRequest
		wantField string
	}{
		{"blank text", narrateRequest{Text: "   "}, "text"},
		{"unknown narrator", narrateRequest{Text: "Hi.", Narrator: "morgan"}, "narrator"},
		{"negative limit", narrateRequest{Text: "Hi.", WordLimit: -1}, "word_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)

			var domainErr *errors.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Contains(t, details, tt.wantField)
		})
	}
}

func TestValidator_NarratorMessageListsChoices(t *testing.T) {
	err := validation.New().Validate(narrateRequest{Text: "Hi.", Narrator: "morgan"})

	var domainErr *errors.Error
	require.True(t, errors.As(err, &domainErr))
	details := domainErr.Details.(map[string]string)
	assert.Contains(t, details["narrator"], "gwyneth")
}
