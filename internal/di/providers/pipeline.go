package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/narrator/internal/audio"
	"github.com/listenupapp/narrator/internal/capture"
	"github.com/listenupapp/narrator/internal/chunker"
	"github.com/listenupapp/narrator/internal/config"
	"github.com/listenupapp/narrator/internal/logger"
	"github.com/listenupapp/narrator/internal/narration"
	"github.com/listenupapp/narrator/internal/ratelimit"
)

// ProvidePipeline provides the browser-backed narration pipeline.
// ffmpeg is resolved here so a missing binary fails before any browser starts.
func ProvidePipeline(i do.Injector) (*narration.Pipeline, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	ffmpegPath, err := audio.LookupFFmpeg(cfg.Audio.FFmpegPath)
	if err != nil {
		return nil, err
	}

	decoder, err := audio.NewFFmpegDecoder(ffmpegPath, cfg.Audio.SampleRate, cfg.Audio.Channels, log.Logger)
	if err != nil {
		return nil, err
	}
	transcoder, err := audio.NewFFmpegTranscoder(ffmpegPath, cfg.Audio.MP3Quality)
	if err != nil {
		return nil, err
	}
	exporter := audio.NewExporter(transcoder, audio.MetaProber{}, cfg.Audio.Tolerance, log.Logger)

	sentences, err := chunker.New()
	if err != nil {
		return nil, err
	}

	provider := narration.NewBrowserProvider(capture.Config{
		ChromePath:       cfg.Browser.ChromePath,
		Headless:         cfg.Browser.Headless,
		StartupTimeout:   cfg.Browser.StartupTimeout,
		SynthesisTimeout: cfg.Browser.SynthesisTimeout,
		SettleDelay:      cfg.Browser.SettleDelay,
		PollInterval:     cfg.Browser.PollInterval,
	}, ratelimit.Every(cfg.Browser.SynthesisInterval), log.Logger)

	log.Info("narration pipeline ready",
		"ffmpeg", ffmpegPath,
		"headless", cfg.Browser.Headless,
		"sample_rate", cfg.Audio.SampleRate,
	)

	return narration.NewPipeline(provider, decoder, exporter, sentences, log.Logger), nil
}
