package speechify

import (
	"encoding/base64"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/listenupapp/narrator/internal/errors"
)

// DefaultAudioFormat is what the page streams when the response omits audioFormat.
const DefaultAudioFormat = "ogg"

// Mark is one word timing from the synthesis response, relative to the chunk start.
type Mark struct {
	Value   string
	StartMs int64
	EndMs   int64
}

// Payload is a decoded synthesis response.
type Payload struct {
	Audio  []byte
	Format string
	Marks  []Mark
}

// ParsePayload extracts audio bytes and word marks from a synthesis response body.
//
//	{"audioStream":"<base64>","audioFormat":"ogg",
//	 "speechMarks":{"chunks":[{"chunks":[{"value":"Hi","startTime":0,"endTime":310}]}]}}
func ParsePayload(body []byte) (*Payload, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.Decode("synthesis response is not valid JSON", nil)
	}

	stream := gjson.GetBytes(body, "audioStream")
	if stream.Type != gjson.String || stream.Str == "" {
		return nil, errors.Decode("synthesis response has no audioStream", nil)
	}
	audio, err := base64.StdEncoding.DecodeString(stream.Str)
	if err != nil {
		return nil, errors.Decode("audioStream is not valid base64", err)
	}

	format := strings.ToLower(gjson.GetBytes(body, "audioFormat").String())
	if format == "" {
		format = DefaultAudioFormat
	}

	return &Payload{
		Audio:  audio,
		Format: format,
		Marks:  parseMarks(gjson.GetBytes(body, "speechMarks")),
	}, nil
}

// parseMarks flattens sentence chunks into their word chunks, in order.
func parseMarks(marks gjson.Result) []Mark {
	var out []Mark
	marks.Get("chunks").ForEach(func(_, sentence gjson.Result) bool {
		sentence.Get("chunks").ForEach(func(_, word gjson.Result) bool {
			out = append(out, Mark{
				Value:   word.Get("value").String(),
				StartMs: word.Get("startTime").Int(),
				EndMs:   word.Get("endTime").Int(),
			})
			return true
		})
		return true
	})
	return out
}
