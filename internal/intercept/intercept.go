// Package intercept finds the synthesis response in a browser network log and fetches its body.
package intercept

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/listenupapp/narrator/internal/errors"
	"github.com/listenupapp/narrator/internal/speechify"
)

// MethodResponseReceived is the CDP event name for a received response.
const MethodResponseReceived = "Network.responseReceived"

// Source is a captured network log whose bodies can be fetched by request id.
type Source interface {
	// Records returns the CDP-shaped JSON records captured since the last drain, oldest first.
	Records() []string
	ResponseBody(ctx context.Context, requestID string) ([]byte, error)
}

// ResponseRecord is the subset of a Network.responseReceived event the interceptor reads.
type ResponseRecord struct {
	RequestID string
	URL       string
	Status    int64
	MimeType  string
	Headers   map[string]string
}

// String renders the record as a CDP log message.
func (r ResponseRecord) String() string {
	type response struct {
		URL      string            `json:"url"`
		Status   int64             `json:"status"`
		MimeType string            `json:"mimeType"`
		Headers  map[string]string `json:"headers"`
	}
	type params struct {
		RequestID string   `json:"requestId"`
		Response  response `json:"response"`
	}
	msg := struct {
		Method string `json:"method"`
		Params params `json:"params"`
	}{
		Method: MethodResponseReceived,
		Params: params{
			RequestID: r.RequestID,
			Response:  response{URL: r.URL, Status: r.Status, MimeType: r.MimeType, Headers: r.Headers},
		},
	}
	// Only strings and ints; Marshal cannot fail.
	data, _ := json.Marshal(msg)
	return string(data)
}

// Interceptor selects the synthesis response among captured records.
type Interceptor struct {
	Endpoint    string
	ContentType string
	// Strict requires the content type to match exactly; otherwise any JSON response matches.
	Strict bool
	logger *slog.Logger
}

// New creates an Interceptor for the speechify synthesis endpoint.
func New(logger *slog.Logger) *Interceptor {
	return &Interceptor{
		Endpoint:    speechify.SynthesisEndpoint,
		ContentType: speechify.SynthesisContentType,
		Strict:      true,
		logger:      logger,
	}
}

// Extract drains src, picks the most recent matching response, and returns its body.
func (i *Interceptor) Extract(ctx context.Context, src Source) ([]byte, error) {
	records := src.Records()

	var (
		requestID string
		matches   int
	)
	for _, rec := range records {
		if id, ok := i.match(rec); ok {
			requestID = id
			matches++
		}
	}

	if matches == 0 {
		return nil, errors.ResponseNotFound("no synthesis response in network log").
			WithDetails(map[string]int{"records": len(records)})
	}
	if matches > 1 {
		i.logger.Debug("multiple synthesis responses captured, using latest",
			slog.Int("matches", matches),
			slog.String("request_id", requestID),
		)
	}

	body, err := src.ResponseBody(ctx, requestID)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeResponseNotFound, "fetch body for request %s", requestID)
	}
	return body, nil
}

// match reports whether rec is a synthesis response and returns its request id.
func (i *Interceptor) match(rec string) (string, bool) {
	if !gjson.Valid(rec) {
		return "", false
	}
	msg := gjson.Parse(rec)
	if msg.Get("method").String() != MethodResponseReceived {
		return "", false
	}

	resp := msg.Get("params.response")
	if !strings.Contains(resp.Get("url").String(), i.Endpoint) {
		return "", false
	}
	if !i.contentTypeOK(contentType(resp)) {
		return "", false
	}

	id := msg.Get("params.requestId").String()
	return id, id != ""
}

func (i *Interceptor) contentTypeOK(ct string) bool {
	if i.Strict {
		return strings.EqualFold(strings.TrimSpace(ct), i.ContentType)
	}
	return strings.Contains(strings.ToLower(ct), "application/json")
}

// contentType reads the content-type header regardless of its casing, falling back to mimeType.
func contentType(resp gjson.Result) string {
	var ct string
	resp.Get("headers").ForEach(func(key, value gjson.Result) bool {
		if strings.EqualFold(key.String(), "content-type") {
			ct = value.String()
			return false
		}
		return true
	})
	if ct == "" {
		ct = resp.Get("mimeType").String()
	}
	return ct
}
