package watcher

import (
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Options configures the inbox watcher.
type Options struct {
	// Extensions lists the accepted file suffixes, lowercase with the dot.
	Extensions     []string
	IgnorePatterns []string
	SettleDelay    time.Duration
	IgnoreHidden   bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.SettleDelay == 0 {
		o.SettleDelay = 250 * time.Millisecond
	}
	if len(o.Extensions) == 0 {
		o.Extensions = []string{".txt"}
	}

	// Default ignores apply only when no patterns were set (nil, not just empty).
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{
			".DS_Store",
			"*.tmp",
			"*.swp",
			"~*",
		}
		o.IgnoreHidden = true
	}
}

// accepts reports whether a file at path should become a narration job.
func (o *Options) accepts(path string) bool {
	base := filepath.Base(path)

	if o.IgnoreHidden && strings.HasPrefix(base, ".") {
		return false
	}
	for _, pattern := range o.IgnorePatterns {
		if matched, err := filepath.Match(pattern, base); err == nil && matched {
			return false
		}
	}
	return slices.Contains(o.Extensions, strings.ToLower(filepath.Ext(base)))
}
