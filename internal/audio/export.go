package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/simonhull/audiometa"

	"github.com/listenupapp/narrator/internal/errors"
)

// DefaultTolerance is the accepted duration drift between the track and its exported files.
const DefaultTolerance = 0.05

// Transcoder converts the lossless export to the distribution format.
type Transcoder interface {
	ToMP3(ctx context.Context, wavPath, mp3Path string) error
}

// Prober reads the duration of an encoded file.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Export describes the files written for one narration.
type Export struct {
	WAVPath        string  `json:"wav_path"`
	MP3Path        string  `json:"mp3_path"`
	DurationSec    float64 `json:"duration_sec"`
	MP3DurationSec float64 `json:"mp3_duration_sec,omitempty"`
}

// Exporter writes a track as WAV once, then transcodes it to MP3.
type Exporter struct {
	transcoder Transcoder
	prober     Prober
	tolerance  float64
	logger     *slog.Logger
}

// NewExporter creates an Exporter. A nil prober skips the post-transcode duration check.
func NewExporter(transcoder Transcoder, prober Prober, tolerance float64, logger *slog.Logger) *Exporter {
	return &Exporter{transcoder: transcoder, prober: prober, tolerance: tolerance, logger: logger}
}

// Export writes <dir>/<base>.wav and <dir>/<base>.mp3. Files are written under temporary
// names and renamed only when both succeed; on failure nothing is left behind.
func (e *Exporter) Export(ctx context.Context, track *Track, dir, base string) (out *Export, err error) {
	if len(track.Segments) == 0 {
		return nil, errors.Internal("no audio to export")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.IO("create output dir", err)
	}

	wavPath := filepath.Join(dir, base+".wav")
	mp3Path := filepath.Join(dir, base+".mp3")
	wavTmp := filepath.Join(dir, "."+base+".wav.partial")
	mp3Tmp := filepath.Join(dir, "."+base+".mp3.partial")

	cleanup := []string{wavTmp, mp3Tmp}
	defer func() {
		if err == nil {
			return
		}
		for _, p := range cleanup {
			_ = os.Remove(p)
		}
	}()

	if err := WriteWAV(wavTmp, track); err != nil {
		return nil, err
	}
	wavSec, err := WAVDuration(wavTmp)
	if err != nil {
		return nil, err
	}
	if drift := math.Abs(wavSec - track.Seconds()); drift > e.tolerance {
		e.logger.Warn("wav duration drifted from assembled track",
			slog.Float64("track_sec", track.Seconds()),
			slog.Float64("wav_sec", wavSec),
		)
	}

	if err := e.transcoder.ToMP3(ctx, wavTmp, mp3Tmp); err != nil {
		return nil, err
	}

	if err := os.Rename(wavTmp, wavPath); err != nil {
		return nil, errors.IO("finalize wav", err)
	}
	cleanup = append(cleanup, wavPath)
	if err := os.Rename(mp3Tmp, mp3Path); err != nil {
		return nil, errors.IO("finalize mp3", err)
	}

	out = &Export{WAVPath: wavPath, MP3Path: mp3Path, DurationSec: track.Seconds()}
	e.checkMP3(ctx, out)
	return out, nil
}

// checkMP3 records the encoded duration and warns when it strays from the track.
// Encoder padding makes small drift normal, so this never fails the export.
func (e *Exporter) checkMP3(ctx context.Context, out *Export) {
	if e.prober == nil {
		return
	}
	d, err := e.prober.Duration(ctx, out.MP3Path)
	if err != nil {
		e.logger.Warn("could not probe mp3 duration", slog.String("path", out.MP3Path), slog.String("error", err.Error()))
		return
	}
	out.MP3DurationSec = d.Seconds()
	if drift := math.Abs(out.MP3DurationSec - out.DurationSec); drift > e.tolerance {
		e.logger.Warn("mp3 duration drifted from assembled track",
			slog.Float64("track_sec", out.DurationSec),
			slog.Float64("mp3_sec", out.MP3DurationSec),
			slog.Float64("tolerance", e.tolerance),
		)
	}
}

// WriteWAV encodes track as 16-bit PCM WAV at path.
func WriteWAV(path string, track *Track) error {
	f, err := os.Create(path) //nolint:gosec // path is built from the caller's output dir
	if err != nil {
		return errors.IO("create wav", err)
	}

	enc := wav.NewEncoder(f, track.SampleRate, 16, track.Channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: track.Channels, SampleRate: track.SampleRate},
		Data:           track.Samples(),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		_ = f.Close()
		return errors.IO("write wav samples", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return errors.IO("finalize wav header", err)
	}
	if err := f.Close(); err != nil {
		return errors.IO("close wav", err)
	}
	return nil
}

// ReadWAV decodes a 16-bit PCM WAV file into a segment.
func ReadWAV(path string) (Segment, error) {
	f, err := os.Open(path) //nolint:gosec // path is one this package wrote
	if err != nil {
		return Segment{}, errors.IO("open wav", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Segment{}, errors.Decode(fmt.Sprintf("%s is not a valid wav file", path), nil)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Segment{}, errors.Decode("read wav samples", err)
	}
	return NewSegment(buf.Data, buf.Format.SampleRate, buf.Format.NumChannels), nil
}

// WAVDuration returns the exact duration of a WAV file from its frame count.
func WAVDuration(path string) (float64, error) {
	seg, err := ReadWAV(path)
	if err != nil {
		return 0, err
	}
	return float64(seg.Frames()) / float64(seg.SampleRate), nil
}

// FFmpegTranscoder encodes MP3 with libmp3lame.
type FFmpegTranscoder struct {
	ffmpegPath string
	quality    int
}

// NewFFmpegTranscoder resolves ffmpeg and returns a VBR transcoder at quality 0-9.
func NewFFmpegTranscoder(ffmpegPath string, quality int) (*FFmpegTranscoder, error) {
	path, err := LookupFFmpeg(ffmpegPath)
	if err != nil {
		return nil, err
	}
	return &FFmpegTranscoder{ffmpegPath: path, quality: quality}, nil
}

// ToMP3 transcodes wavPath into mp3Path.
func (t *FFmpegTranscoder) ToMP3(ctx context.Context, wavPath, mp3Path string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.ffmpegPath, //nolint:gosec // ffmpegPath is resolved with exec.LookPath
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", wavPath,
		"-codec:a", "libmp3lame",
		"-q:a", strconv.Itoa(t.quality),
		"-f", "mp3",
		mp3Path,
	)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.IO(fmt.Sprintf("ffmpeg mp3 encode failed: %s", strings.TrimSpace(stderr.String())), err)
	}
	return nil
}

// MetaProber reads durations from container metadata with audiometa.
type MetaProber struct{}

// Duration returns the duration audiometa reports for path.
func (MetaProber) Duration(ctx context.Context, path string) (time.Duration, error) {
	file, err := audiometa.OpenContext(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("read audio metadata: %w", err)
	}
	defer file.Close()
	return file.Audio.Duration, nil
}
