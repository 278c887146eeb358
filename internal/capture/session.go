// Package capture drives one headless browser through the TTS page, one chunk at a time,
// while recording the page's network responses.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/errors"
	"github.com/listenupapp/narrator/internal/id"
	"github.com/listenupapp/narrator/internal/speechify"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateReady State = iota
	StateSynthesizing
	StateCaptured
	StateIdle
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateSynthesizing:
		return "synthesizing"
	case StateCaptured:
		return "captured"
	case StateIdle:
		return "idle"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config controls browser launch and page waits.
type Config struct {
	ChromePath       string // Empty lets chromedp find Chrome
	Headless         bool
	ProfileRoot      string // Parent of per-session profile dirs; empty means os.TempDir
	StartupTimeout   time.Duration
	SynthesisTimeout time.Duration
	SettleDelay      time.Duration
	PollInterval     time.Duration
}

// DefaultConfig returns the stock capture settings.
func DefaultConfig() Config {
	return Config{
		Headless:         true,
		StartupTimeout:   60 * time.Second,
		SynthesisTimeout: 15 * time.Minute,
		SettleDelay:      750 * time.Millisecond,
		PollInterval:     250 * time.Millisecond,
	}
}

// Session owns one browser instance and its profile directory.
// It is not safe for concurrent Synthesize calls; one chunk is in flight at a time.
type Session struct {
	cfg    Config
	voice  speechify.Voice
	logger *slog.Logger

	profileDir  string
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	netlog *networkLog

	mu        sync.Mutex
	state     State
	closeOnce sync.Once
	closeErr  error
}

// Open launches a browser on an isolated profile, opens the TTS page for voice, and waits
// for the text input to become interactive.
func Open(ctx context.Context, cfg Config, voice speechify.Voice, logger *slog.Logger) (*Session, error) {
	profileDir, err := os.MkdirTemp(cfg.ProfileRoot, id.ProfileDirPattern())
	if err != nil {
		return nil, errors.IO("create browser profile dir", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserDataDir(profileDir),
	)
	if cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	// The browser outlives ctx; Close is what tears it down.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug("chromedp", slog.String("detail", fmt.Sprintf(format, args...)))
		}),
	)

	s := &Session{
		cfg:         cfg,
		voice:       voice,
		logger:      logger.With(slog.String("voice", voice.ID)),
		profileDir:  profileDir,
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		netlog:      &networkLog{},
		state:       StateReady,
	}
	chromedp.ListenTarget(tabCtx, s.netlog.onEvent)

	if err := s.launch(ctx); err != nil {
		_ = s.Close()
		return nil, errors.SessionStartup("browser did not start", err)
	}

	pageURL := speechify.PageURL(voice)
	s.logger.Info("opening tts page", slog.String("url", pageURL))

	err = s.run(ctx, cfg.StartupTimeout,
		network.Enable(),
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible(speechify.TextInputSelector, chromedp.ByQuery),
		chromedp.Sleep(cfg.SettleDelay),
	)
	if err != nil {
		_ = s.Close()
		return nil, errors.SessionStartup("tts page did not become interactive", err)
	}

	return s, nil
}

// launch starts the browser process. The first Run on a tab context must not carry a
// deadline of its own or the browser would die with it, so the bound is applied here.
func (s *Session) launch(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(s.tabCtx) }()

	select {
	case err := <-done:
		return err
	case <-time.After(s.cfg.StartupTimeout):
		return fmt.Errorf("browser launch exceeded %s", s.cfg.StartupTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition moves from one of the allowed states to next.
func (s *Session) transition(next State, allowed ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range allowed {
		if s.state == a {
			s.state = next
			return nil
		}
	}
	return errors.Conflictf("session is %s, cannot move to %s", s.state, next)
}

// Synthesize types chunk into the page, starts playback, and blocks until the play control's
// markup changes, which is the page's only completion signal. On timeout the session is
// closed and cannot be reused.
func (s *Session) Synthesize(ctx context.Context, chunk domain.TextChunk) error {
	if err := s.transition(StateSynthesizing, StateReady, StateIdle); err != nil {
		return err
	}
	log := s.logger.With(slog.Int("chunk", chunk.Index))
	start := time.Now()

	// Only this chunk's responses are of interest.
	s.netlog.drain()

	err := s.synthesize(ctx, StripNonBMP(chunk.Text))
	if err != nil {
		_ = s.Close()
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return errors.SynthesisTimeoutf("chunk %d did not finish within %s", chunk.Index, s.cfg.SynthesisTimeout)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.Wrapf(err, errors.CodeInternal, "drive tts page for chunk %d", chunk.Index)
	}

	if err := s.transition(StateCaptured, StateSynthesizing); err != nil {
		return err
	}
	log.Info("chunk synthesized",
		slog.Int("words", chunk.WordCount),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func (s *Session) synthesize(ctx context.Context, text string) error {
	runCtx, cancel := s.bounded(ctx, s.cfg.SynthesisTimeout)
	defer cancel()

	var before string
	err := chromedp.Run(runCtx,
		chromedp.Click(speechify.TextInputSelector, chromedp.ByQuery),
		chromedp.Clear(speechify.TextInputSelector, chromedp.ByQuery),
		chromedp.SendKeys(speechify.TextInputSelector, text, chromedp.ByQuery),
		chromedp.Sleep(s.cfg.SettleDelay),
		chromedp.WaitReady(speechify.PlayButtonSelector, chromedp.ByQuery),
		chromedp.OuterHTML(speechify.PlayButtonSelector, &before, chromedp.ByQuery),
		chromedp.Click(speechify.PlayButtonSelector, chromedp.ByQuery),
	)
	if err != nil {
		return err
	}

	return waitForChange(runCtx, s.cfg.PollInterval, before, func(ctx context.Context) (string, error) {
		var now string
		err := chromedp.Run(ctx, chromedp.Evaluate(outerHTMLScript(speechify.PlayButtonSelector), &now))
		return now, err
	})
}

// waitForChange polls read until its value differs from before or ctx ends.
func waitForChange(ctx context.Context, interval time.Duration, before string, read func(context.Context) (string, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		now, err := read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Transient while the page re-renders.
			continue
		}
		if now != before {
			return nil
		}
	}
}

// Records drains the responses captured since Synthesize started, as CDP-shaped JSON.
func (s *Session) Records() []string {
	return s.netlog.drain()
}

// ResponseBody fetches a captured response body out of band.
func (s *Session) ResponseBody(ctx context.Context, requestID string) ([]byte, error) {
	var body []byte
	err := s.run(ctx, s.cfg.StartupTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(network.RequestID(requestID)).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// Reset hides the reader overlay the page opens after playback and restores the text input,
// leaving the page ready for the next chunk.
func (s *Session) Reset(ctx context.Context) error {
	if err := s.transition(StateIdle, StateCaptured); err != nil {
		return err
	}
	script := fmt.Sprintf(`(() => {
		const panel = document.querySelector(%q);
		if (panel) panel.setAttribute("style", "display: none;");
		const input = document.querySelector(%q);
		if (input) input.setAttribute("style", "");
		return true;
	})()`, speechify.ReaderPanelSelector, speechify.TextInputSelector)

	var ok bool
	err := s.run(ctx, s.cfg.StartupTimeout,
		chromedp.Evaluate(script, &ok),
		chromedp.Sleep(s.cfg.SettleDelay),
	)
	if err != nil {
		_ = s.Close()
		return errors.Wrap(err, errors.CodeInternal, "reset tts page")
	}
	return nil
}

// Close terminates the browser and removes the profile dir. Safe to call repeatedly.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()

		if err := chromedp.Cancel(s.tabCtx); err != nil {
			s.logger.Debug("browser cancel", slog.String("error", err.Error()))
		}
		s.cancelTab()
		s.cancelAlloc()

		if err := os.RemoveAll(s.profileDir); err != nil {
			s.closeErr = errors.IO("remove browser profile dir", err)
		}
		s.logger.Debug("capture session closed")
	})
	return s.closeErr
}

// run executes actions on the tab with a timeout, also stopping when ctx is done.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := s.bounded(ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// bounded derives a tab context that ends at timeout or when ctx is done.
func (s *Session) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func outerHTMLScript(selector string) string {
	return fmt.Sprintf(`(() => { const el = document.querySelector(%q); return el ? el.outerHTML : ""; })()`, selector)
}

// StripNonBMP removes runes outside the Basic Multilingual Plane, which the page cannot render.
func StripNonBMP(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r <= 0xFFFF {
			out = append(out, r)
		}
	}
	return string(out)
}
