// Package speechify describes the public speechify text-to-speech page: where it lives,
// which controls it exposes, which network response carries the synthesized audio,
// and how that response is laid out.
package speechify

import (
	"net/url"

	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/errors"
)

// Page endpoints and selectors.
const (
	PageBase = "https://speechify.com/text-to-speech-online/"

	// SynthesisEndpoint is the URL prefix of the response carrying audio and speech marks.
	SynthesisEndpoint = "https://audio.api.speechify.dev/generateAudioFiles"
	SynthesisHost     = "audio.api.speechify.dev"
	// SynthesisContentType is the exact content type the synthesis response is served with.
	SynthesisContentType = "application/json; charset=utf-8"

	TextInputSelector   = "#article"
	PlayButtonSelector  = ".ttso-iframe-play"
	ReaderPanelSelector = "#pdf-reader-content"
)

// Voice is a voice identity on the TTS page.
type Voice struct {
	ID       string `json:"id"`
	Gender   string `json:"gender"`
	Language string `json:"language"`
}

var voices = map[domain.Narrator]Voice{
	domain.NarratorSnoop:    {ID: "snoop", Gender: "male", Language: "English"},
	domain.NarratorMrBeast:  {ID: "mrbeast", Gender: "male", Language: "English"},
	domain.NarratorGwyneth:  {ID: "gwyneth", Gender: "female", Language: "English"},
	domain.NarratorMale:     {ID: "henry", Gender: "male", Language: "English"},
	domain.NarratorFemale:   {ID: "Jane", Gender: "female", Language: "English"},
	// No preset page URL exists for this persona; the id is passed through by name.
	domain.NarratorNarrator: {ID: "narrator", Gender: "male", Language: "English"},
}

// VoiceFor returns the voice for a narrator. Unknown narrators fail with INVALID_CONFIGURATION.
func VoiceFor(n domain.Narrator) (Voice, error) {
	v, ok := voices[n]
	if !ok {
		return Voice{}, errors.InvalidConfigurationf("unknown narrator %q", n)
	}
	return v, nil
}

// PageURL returns the TTS page URL preselecting voice. The page reads the voice from
// its query string, so no client-side state needs to be touched.
func PageURL(v Voice) string {
	q := url.Values{}
	q.Set("ttsvoice", v.ID)
	q.Set("ttsgender", v.Gender)
	q.Set("ttslang", v.Language)
	return PageBase + "?" + q.Encode()
}
