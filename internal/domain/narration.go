package domain

import (
	"slices"
	"strings"
	"time"
)

// Narrator is a caller-facing persona name that maps to one TTS voice.
type Narrator string

const (
	NarratorSnoop    Narrator = "snoop"
	NarratorMrBeast  Narrator = "mrbeast"
	NarratorGwyneth  Narrator = "gwyneth"
	NarratorMale     Narrator = "male"
	NarratorFemale   Narrator = "female"
	NarratorNarrator Narrator = "narrator"
)

// Narrators lists every supported persona in display order.
var Narrators = []Narrator{
	NarratorSnoop,
	NarratorMrBeast,
	NarratorGwyneth,
	NarratorMale,
	NarratorFemale,
	NarratorNarrator,
}

// ParseNarrator normalizes a persona name. The second return is false for unknown names.
func ParseNarrator(s string) (Narrator, bool) {
	n := Narrator(strings.ToLower(strings.TrimSpace(s)))
	return n, n.Valid()
}

// Valid reports whether n is one of the supported personas.
func (n Narrator) Valid() bool {
	return slices.Contains(Narrators, n)
}

// TextChunk is a contiguous run of whole sentences submitted to the TTS page in one request.
type TextChunk struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
}

// Word is one spoken word positioned on the assembled narration track.
// StartSec <= EndSec, and StartSec never decreases across a timeline.
type Word struct {
	Text     string  `json:"text"`
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
}

// NarrationStatus represents the state of a narration job.
type NarrationStatus string

const (
	NarrationStatusPending   NarrationStatus = "pending"
	NarrationStatusRunning   NarrationStatus = "running"
	NarrationStatusCompleted NarrationStatus = "completed"
	NarrationStatusFailed    NarrationStatus = "failed"
)

// NarrationJob is a queued request to narrate a text and keep its outputs.
// The word timeline is stored separately from the job record.
type NarrationJob struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Text      string   `json:"text"`
	Narrator  Narrator `json:"narrator"`
	WordLimit int      `json:"word_limit"`

	// Outputs
	OutputDir    string   `json:"output_dir,omitempty"`
	WAVPath      string   `json:"wav_path,omitempty"`
	MP3Path      string   `json:"mp3_path,omitempty"`
	DurationSec  float64  `json:"duration_sec,omitempty"`
	WordCount    int      `json:"word_count,omitempty"`
	ChunkCount   int      `json:"chunk_count,omitempty"`
	ArtifactURLs []string `json:"artifact_urls,omitempty"`

	Status NarrationStatus `json:"status"`
	Error  string          `json:"error,omitempty"`
	// ErrorCode is the failure kind, e.g. SYNTHESIS_TIMEOUT.
	ErrorCode string `json:"error_code,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// MarkRunning transitions the job to running state.
func (j *NarrationJob) MarkRunning() {
	j.Status = NarrationStatusRunning
	now := time.Now()
	j.StartedAt = &now
	j.Error = ""
	j.ErrorCode = ""
}

// NarrationOutput is what a finished run hands back to its job.
type NarrationOutput struct {
	WAVPath     string
	MP3Path     string
	DurationSec float64
	WordCount   int
	ChunkCount  int
}

// MarkCompleted transitions the job to completed state.
func (j *NarrationJob) MarkCompleted(out NarrationOutput) {
	j.Status = NarrationStatusCompleted
	j.WAVPath = out.WAVPath
	j.MP3Path = out.MP3Path
	j.DurationSec = out.DurationSec
	j.WordCount = out.WordCount
	j.ChunkCount = out.ChunkCount
	now := time.Now()
	j.CompletedAt = &now
}

// MarkFailed transitions the job to failed state.
func (j *NarrationJob) MarkFailed(code, msg string) {
	j.Status = NarrationStatusFailed
	j.ErrorCode = code
	j.Error = msg
	now := time.Now()
	j.CompletedAt = &now
}

// Finished reports whether the job reached a terminal state.
func (j *NarrationJob) Finished() bool {
	return j.Status == NarrationStatusCompleted || j.Status == NarrationStatusFailed
}
