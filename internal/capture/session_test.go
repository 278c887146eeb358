package capture

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/errors"
)

// detachedSession builds a Session with no browser behind it.
func detachedSession(t *testing.T, cancels *int) *Session {
	t.Helper()
	dir, err := os.MkdirTemp(t.TempDir(), "cap-*")
	require.NoError(t, err)

	count := func() { *cancels++ }
	return &Session{
		cfg:         DefaultConfig(),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		profileDir:  dir,
		tabCtx:      context.Background(),
		cancelTab:   count,
		cancelAlloc: func() {},
		netlog:      &networkLog{},
		state:       StateReady,
	}
}

func TestClose_Idempotent(t *testing.T) {
	var cancels int
	s := detachedSession(t, &cancels)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, 1, cancels)
	assert.Equal(t, StateClosed, s.State())
	_, err := os.Stat(s.profileDir)
	assert.True(t, os.IsNotExist(err))
}

func TestSynthesize_RejectedAfterClose(t *testing.T) {
	var cancels int
	s := detachedSession(t, &cancels)
	require.NoError(t, s.Close())

	err := s.Synthesize(context.Background(), domain.TextChunk{Text: "Hello."})
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestReset_RequiresCaptured(t *testing.T) {
	var cancels int
	s := detachedSession(t, &cancels)

	err := s.Reset(context.Background())
	assert.True(t, errors.Is(err, errors.ErrConflict))
	assert.Equal(t, StateReady, s.State())
}

func TestTransition(t *testing.T) {
	var cancels int
	s := detachedSession(t, &cancels)

	require.NoError(t, s.transition(StateSynthesizing, StateReady, StateIdle))
	require.NoError(t, s.transition(StateCaptured, StateSynthesizing))
	require.NoError(t, s.transition(StateIdle, StateCaptured))
	require.NoError(t, s.transition(StateSynthesizing, StateReady, StateIdle))

	err := s.transition(StateIdle, StateCaptured)
	assert.Error(t, err)
	assert.Equal(t, StateSynthesizing, s.State())
}

func TestStripNonBMP(t *testing.T) {
	assert.Equal(t, "so good  right", StripNonBMP("so good 😂 right"))
	assert.Equal(t, "café — ok", StripNonBMP("café — ok"))
	assert.Empty(t, StripNonBMP("🔥🔥"))
}

func TestWaitForChange(t *testing.T) {
	reads := 0
	err := waitForChange(context.Background(), time.Millisecond, "<button>play</button>", func(context.Context) (string, error) {
		reads++
		if reads < 3 {
			return "<button>play</button>", nil
		}
		return "<button>pause</button>", nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, reads)
}

func TestWaitForChange_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := waitForChange(ctx, time.Millisecond, "same", func(context.Context) (string, error) {
		return "same", nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNetworkLog_RecordsResponses(t *testing.T) {
	l := &networkLog{}

	l.onEvent(&network.EventResponseReceived{
		RequestID: "42.7",
		Response: &network.Response{
			URL:      "https://audio.api.speechify.dev/generateAudioFiles",
			Status:   200,
			MimeType: "application/json",
			Headers:  network.Headers{"content-type": "application/json; charset=utf-8"},
		},
	})
	l.onEvent(&network.EventLoadingFinished{RequestID: "42.7"})

	records := l.drain()
	require.Len(t, records, 1)
	assert.Equal(t, "Network.responseReceived", gjson.Get(records[0], "method").String())
	assert.Equal(t, "42.7", gjson.Get(records[0], "params.requestId").String())
	assert.Equal(t, "application/json; charset=utf-8", gjson.Get(records[0], "params.response.headers.content-type").String())

	assert.Empty(t, l.drain())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "captured", StateCaptured.String())
	assert.Equal(t, "closed", StateClosed.String())
}
