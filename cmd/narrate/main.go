// Package main provides a one-shot command that narrates a text file and writes the
// audio with its word timeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gosimple/slug"
	"github.com/samber/do/v2"

	"github.com/listenupapp/narrator/internal/config"
	"github.com/listenupapp/narrator/internal/di"
	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/errors"
	"github.com/listenupapp/narrator/internal/narration"
	"github.com/listenupapp/narrator/internal/timeline"
)

type options struct {
	text  string
	file  string
	title string
	out   string
	base  string
}

func main() {
	fs := flag.NewFlagSet("narrate", flag.ExitOnError)
	// -narrator, -word-limit and the browser settings come from the shared config flags.
	flags := config.BindFlags(fs)

	var opts options
	fs.StringVar(&opts.text, "text", "", "Text to narrate")
	fs.StringVar(&opts.file, "file", "", "Read the text to narrate from this file")
	fs.StringVar(&opts.title, "title", "", "Narrate this title before the text and write a combined timeline")
	fs.StringVar(&opts.out, "out", "", "Output directory (default: configured output path)")
	fs.StringVar(&opts.base, "base", "", "Output file base name (default: slug of the title or file name)")
	_ = fs.Parse(os.Args[1:])

	cfg, err := flags.Resolve()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, cfg, opts)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg *config.Config, opts options) int {
	text, err := readText(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 2
	}

	outDir := opts.out
	if outDir == "" {
		outDir = cfg.Narration.OutputPath
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
		return 1
	}

	injector := di.NewContainer(cfg)
	defer injector.Shutdown()

	pipeline, err := do.Invoke[*narration.Pipeline](injector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start pipeline: %v\n", err)
		return 1
	}

	base := baseName(opts)
	req := narration.Request{
		Narrator:     cfg.Narration.DefaultNarrator,
		WordLimit:    cfg.Narration.WordLimit,
		ChunkRetries: cfg.Narration.ChunkRetries,
		OutputDir:    outDir,
	}

	var title *narration.Result
	if strings.TrimSpace(opts.title) != "" {
		titleReq := req
		titleReq.Text = opts.title
		titleReq.BaseName = base + "-title"
		if title, err = pipeline.Narrate(ctx, titleReq); err != nil {
			return report("title", err)
		}
	}

	bodyReq := req
	bodyReq.Text = text
	bodyReq.BaseName = base
	body, err := pipeline.Narrate(ctx, bodyReq)
	if err != nil {
		return report("body", err)
	}

	printResult(body)
	if title == nil {
		return 0
	}

	printResult(title)
	words := narration.Compose(title, body)
	if err := writeCombined(words, outDir, base+"-full"); err != nil {
		fmt.Fprintf(os.Stderr, "write combined timeline: %v\n", err)
		return 1
	}
	fmt.Printf("combined timeline: %s (%d words)\n", filepath.Join(outDir, base+"-full.words.json"), len(words))
	return 0
}

func readText(opts options) (string, error) {
	switch {
	case opts.text != "" && opts.file != "":
		return "", errors.Validation("use either -text or -file, not both")
	case opts.file != "":
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return "", errors.IO("read "+opts.file, err)
		}
		return string(data), nil
	case opts.text != "":
		return opts.text, nil
	default:
		return "", errors.Validation("nothing to narrate: pass -text or -file")
	}
}

// baseName prefers -base, then the title, then the input file name.
func baseName(opts options) string {
	if opts.base != "" {
		return opts.base
	}
	for _, candidate := range []string{
		opts.title,
		strings.TrimSuffix(filepath.Base(opts.file), filepath.Ext(opts.file)),
	} {
		if s := slug.Make(candidate); s != "" && s != "." {
			return s
		}
	}
	return narration.DefaultBaseName
}

func writeCombined(words []domain.Word, dir, base string) error {
	jsonFile, err := os.Create(filepath.Join(dir, base+".words.json"))
	if err != nil {
		return err
	}
	defer jsonFile.Close()
	if err := timeline.WriteJSON(jsonFile, words); err != nil {
		return err
	}

	srtFile, err := os.Create(filepath.Join(dir, base+".srt"))
	if err != nil {
		return err
	}
	defer srtFile.Close()
	return timeline.WriteSRT(srtFile, words)
}

func printResult(r *narration.Result) {
	fmt.Printf("wav:      %s\n", r.WAVPath)
	fmt.Printf("mp3:      %s\n", r.MP3Path)
	fmt.Printf("words:    %s (%d words)\n", r.WordsPath, len(r.Words))
	fmt.Printf("captions: %s\n", r.CaptionsPath)
	fmt.Printf("duration: %.2fs in %d chunks\n", r.DurationSec, r.Chunks)
}

func report(part string, err error) int {
	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		fmt.Fprintf(os.Stderr, "narrate %s failed [%s]: %v\n", part, domainErr.Code, err)
	} else {
		fmt.Fprintf(os.Stderr, "narrate %s failed: %v\n", part, err)
	}
	if errors.Is(err, errors.ErrInvalidConfiguration) {
		return 2
	}
	return 1
}
