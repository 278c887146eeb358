package narration

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/listenupapp/narrator/internal/audio"
	"github.com/listenupapp/narrator/internal/chunker"
	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/errors"
	"github.com/listenupapp/narrator/internal/speechify"
	"github.com/listenupapp/narrator/internal/timeline"
)

// DefaultBaseName names output files when a request leaves BaseName empty.
const DefaultBaseName = "narration"

// Exporter writes the assembled track to disk.
type Exporter interface {
	Export(ctx context.Context, track *audio.Track, dir, base string) (*audio.Export, error)
}

// Request is one narration to produce.
type Request struct {
	Text      string
	Narrator  domain.Narrator
	WordLimit int
	// ChunkRetries re-sends a chunk once when its response was not captured. 0 or 1.
	ChunkRetries int
	OutputDir    string
	BaseName     string
}

// Result is a finished narration. It is only returned when every chunk succeeded.
type Result struct {
	WAVPath      string        `json:"wav_path"`
	MP3Path      string        `json:"mp3_path"`
	WordsPath    string        `json:"words_path"`
	CaptionsPath string        `json:"captions_path"`
	Words        []domain.Word `json:"words"`
	DurationSec  float64       `json:"duration_sec"`
	Chunks       int           `json:"chunks"`
}

// Pipeline produces narrations. Each Narrate call owns its own provider session.
type Pipeline struct {
	provider Provider
	decoder  audio.Decoder
	exporter Exporter
	chunker  *chunker.Chunker
	logger   *slog.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(provider Provider, decoder audio.Decoder, exporter Exporter, c *chunker.Chunker, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		provider: provider,
		decoder:  decoder,
		exporter: exporter,
		chunker:  c,
		logger:   logger,
	}
}

// Validate checks a request before any browser is started.
func (r Request) Validate() error {
	if !r.Narrator.Valid() {
		return errors.InvalidConfigurationf("unknown narrator %q", r.Narrator)
	}
	if r.WordLimit < 1 {
		return errors.InvalidConfigurationf("word limit must be at least 1, got %d", r.WordLimit)
	}
	if r.ChunkRetries < 0 || r.ChunkRetries > 1 {
		return errors.InvalidConfigurationf("chunk retries must be 0 or 1, got %d", r.ChunkRetries)
	}
	if strings.TrimSpace(r.Text) == "" {
		return errors.InvalidConfiguration("text is empty")
	}
	if r.OutputDir == "" {
		return errors.InvalidConfiguration("output dir is required")
	}
	if strings.ContainsAny(r.BaseName, `/\`) {
		return errors.InvalidConfigurationf("base name %q must not contain path separators", r.BaseName)
	}
	return nil
}

// Narrate synthesizes req.Text chunk by chunk and exports the stitched track and its
// timeline. Any failure aborts the run with its original kind and no files are kept.
func (p *Pipeline) Narrate(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	base := req.BaseName
	if base == "" {
		base = DefaultBaseName
	}

	chunks, err := p.chunker.Chunk(req.Text, req.WordLimit)
	if err != nil {
		return nil, err
	}

	log := p.logger.With(slog.String("narrator", string(req.Narrator)))
	log.Info("narration started", slog.Int("chunks", len(chunks)), slog.String("output_dir", req.OutputDir))
	start := time.Now()

	session, err := p.provider.Open(ctx, req.Narrator)
	if err != nil {
		return nil, err
	}
	closeSession := sync.OnceValue(session.Close)
	defer func() { _ = closeSession() }()

	assembler := audio.NewAssembler()
	aligner := timeline.NewAligner()

	for _, chunk := range chunks {
		payload, err := p.synthesize(ctx, session, chunk, req.ChunkRetries, log)
		if err != nil {
			return nil, fmt.Errorf("chunk %d of %d: %w", chunk.Index+1, len(chunks), err)
		}

		seg, err := p.decoder.Decode(ctx, payload.Audio, payload.Format)
		if err != nil {
			return nil, fmt.Errorf("chunk %d of %d: %w", chunk.Index+1, len(chunks), err)
		}

		offset := assembler.Offset()
		aligner.Append(payload.Marks, offset, seg.Centis)
		if err := assembler.Append(seg); err != nil {
			return nil, fmt.Errorf("chunk %d of %d: %w", chunk.Index+1, len(chunks), err)
		}

		log.Info("chunk captured",
			slog.Int("chunk", chunk.Index),
			slog.Int("marks", len(payload.Marks)),
			slog.Float64("offset_sec", audio.CentisToSeconds(offset)),
			slog.Float64("segment_sec", seg.Seconds()),
		)
	}

	// The browser is no longer needed; free it before the export.
	if err := closeSession(); err != nil {
		log.Warn("close synthesis session", slog.String("error", err.Error()))
	}

	track := assembler.Track()
	exported, err := p.exporter.Export(ctx, track, req.OutputDir, base)
	if err != nil {
		return nil, err
	}

	words := aligner.Words()
	result := &Result{
		WAVPath:     exported.WAVPath,
		MP3Path:     exported.MP3Path,
		Words:       words,
		DurationSec: track.Seconds(),
		Chunks:      len(chunks),
	}
	if err := writeTimeline(result, req.OutputDir, base); err != nil {
		_ = os.Remove(exported.WAVPath)
		_ = os.Remove(exported.MP3Path)
		return nil, err
	}

	log.Info("narration finished",
		slog.Int("words", len(words)),
		slog.Float64("duration_sec", result.DurationSec),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// synthesize sends one chunk, re-sending it once on a missed response when retries allow.
func (p *Pipeline) synthesize(ctx context.Context, s Session, chunk domain.TextChunk, retries int, log *slog.Logger) (*speechify.Payload, error) {
	payload, err := s.Synthesize(ctx, chunk)
	for attempt := 0; err != nil && attempt < retries && errors.Is(err, errors.ErrResponseNotFound); attempt++ {
		log.Warn("synthesis response missing, retrying chunk", slog.Int("chunk", chunk.Index))
		payload, err = s.Synthesize(ctx, chunk)
	}
	return payload, err
}

func writeTimeline(r *Result, dir, base string) error {
	r.WordsPath = filepath.Join(dir, base+".words.json")
	r.CaptionsPath = filepath.Join(dir, base+".srt")

	if err := writeFile(r.WordsPath, func(f *os.File) error { return timeline.WriteJSON(f, r.Words) }); err != nil {
		return err
	}
	if err := writeFile(r.CaptionsPath, func(f *os.File) error { return timeline.WriteSRT(f, r.Words) }); err != nil {
		_ = os.Remove(r.WordsPath)
		return err
	}
	return nil
}

func writeFile(path string, write func(*os.File) error) error {
	f, err := os.Create(path) //nolint:gosec // path is built from the request's output dir
	if err != nil {
		return errors.IO("create "+filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return errors.IO("write "+filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return errors.IO("close "+filepath.Base(path), err)
	}
	return nil
}

// Compose joins a title narration and a body narration into one timeline, the body
// shifted to start when the title audio ends.
func Compose(title, body *Result) []domain.Word {
	out := make([]domain.Word, 0, len(title.Words)+len(body.Words))
	out = append(out, title.Words...)
	return append(out, timeline.Shift(body.Words, title.DurationSec)...)
}
