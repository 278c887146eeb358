package capture

import (
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"

	"github.com/listenupapp/narrator/internal/intercept"
)

// networkLog records response events as CDP log messages.
type networkLog struct {
	mu      sync.Mutex
	records []string
}

func (l *networkLog) onEvent(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Response == nil {
		return
	}

	headers := make(map[string]string, len(e.Response.Headers))
	for k, v := range e.Response.Headers {
		headers[k] = fmt.Sprint(v)
	}
	l.append(intercept.ResponseRecord{
		RequestID: string(e.RequestID),
		URL:       e.Response.URL,
		Status:    e.Response.Status,
		MimeType:  e.Response.MimeType,
		Headers:   headers,
	}.String())
}

func (l *networkLog) append(rec string) {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
}

// drain returns and clears the recorded messages.
func (l *networkLog) drain() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.records
	l.records = nil
	return out
}
