package api

// Route paths.
const (
	narrationsPath      = "/api/v1/narrations"
	narrationPath       = narrationsPath + "/{id}"
	narrationEventsPath = narrationsPath + "/events"
)

// API limits and constants.
const (
	// MaxNarrationBodySize bounds a create request (1 MB); text itself is capped at 200k characters.
	MaxNarrationBodySize = 1 << 20
)

// Cache-Control header values.
const (
	// A completed narration's timeline never changes.
	CacheOneDayPrivate = "private, max-age=86400"
	CacheNoStore       = "no-cache"
)
