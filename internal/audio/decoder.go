package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/listenupapp/narrator/internal/errors"
)

// Decoder turns compressed chunk audio into PCM.
type Decoder interface {
	Decode(ctx context.Context, data []byte, format string) (Segment, error)
}

// FFmpegDecoder decodes through an ffmpeg subprocess to signed 16-bit PCM.
type FFmpegDecoder struct {
	ffmpegPath string
	sampleRate int
	channels   int
	logger     *slog.Logger
}

// NewFFmpegDecoder resolves ffmpeg and returns a decoder producing sampleRate x channels PCM.
func NewFFmpegDecoder(ffmpegPath string, sampleRate, channels int, logger *slog.Logger) (*FFmpegDecoder, error) {
	path, err := LookupFFmpeg(ffmpegPath)
	if err != nil {
		return nil, err
	}
	return &FFmpegDecoder{ffmpegPath: path, sampleRate: sampleRate, channels: channels, logger: logger}, nil
}

// LookupFFmpeg finds the ffmpeg binary, defaulting to $PATH.
func LookupFFmpeg(ffmpegPath string) (string, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	path, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return "", errors.Wrapf(err, errors.CodeInvalidConfiguration, "ffmpeg not found at %q", ffmpegPath)
	}
	return path, nil
}

// Decode pipes data through ffmpeg and reads raw little-endian PCM from stdout.
func (d *FFmpegDecoder) Decode(ctx context.Context, data []byte, format string) (Segment, error) {
	if len(data) == 0 {
		return Segment{}, errors.Decode("empty audio payload", nil)
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	if format != "" {
		args = append(args, "-f", format)
	}
	args = append(args,
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ac", strconv.Itoa(d.channels),
		"-ar", strconv.Itoa(d.sampleRate),
		"pipe:1",
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, d.ffmpegPath, args...) //nolint:gosec // ffmpegPath is resolved with exec.LookPath
	cmd.Stdin = bytes.NewReader(data)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Segment{}, ctx.Err()
		}
		return Segment{}, errors.Decode(fmt.Sprintf("ffmpeg could not decode %s audio: %s", format, strings.TrimSpace(stderr.String())), err)
	}

	samples, err := PCM16ToInts(stdout.Bytes())
	if err != nil {
		return Segment{}, err
	}
	if len(samples) == 0 {
		return Segment{}, errors.Decode("ffmpeg produced no audio", nil)
	}

	seg := NewSegment(samples, d.sampleRate, d.channels)
	d.logger.Debug("decoded chunk audio",
		slog.Int("bytes_in", len(data)),
		slog.Int("frames", seg.Frames()),
		slog.Float64("seconds", seg.Seconds()),
	)
	return seg, nil
}

// PCM16ToInts converts little-endian signed 16-bit PCM to samples.
func PCM16ToInts(pcm []byte) ([]int, error) {
	if len(pcm)%2 != 0 {
		return nil, errors.Decode(fmt.Sprintf("pcm stream has odd length %d", len(pcm)), nil)
	}
	out := make([]int, len(pcm)/2)
	for i := range out {
		out[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}
	return out, nil
}
