package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/listenupapp/narrator/internal/domain"
	"github.com/listenupapp/narrator/internal/service"
)

func (s *Server) registerNarrationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createNarration",
		Method:        http.MethodPost,
		Path:          narrationsPath,
		Summary:       "Create narration",
		Description:   "Queues a narration of the given text. The job runs in the background.",
		Tags:          []string{"Narrations"},
		DefaultStatus: http.StatusAccepted,
		MaxBodyBytes:  MaxNarrationBodySize,
	}, s.handleCreateNarration)

	huma.Register(s.api, huma.Operation{
		OperationID: "listNarrations",
		Method:      http.MethodGet,
		Path:        narrationsPath,
		Summary:     "List narrations",
		Description: "Returns the most recent narration jobs, newest first",
		Tags:        []string{"Narrations"},
	}, s.handleListNarrations)

	huma.Register(s.api, huma.Operation{
		OperationID: "getNarration",
		Method:      http.MethodGet,
		Path:        narrationPath,
		Summary:     "Get narration",
		Description: "Returns a narration job by ID",
		Tags:        []string{"Narrations"},
	}, s.handleGetNarration)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteNarration",
		Method:        http.MethodDelete,
		Path:          narrationPath,
		Summary:       "Delete narration",
		Description:   "Deletes a finished narration job and its output files",
		Tags:          []string{"Narrations"},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteNarration)

	huma.Register(s.api, huma.Operation{
		OperationID: "getNarrationWords",
		Method:      http.MethodGet,
		Path:        narrationPath + "/words",
		Summary:     "Get word timeline",
		Description: "Returns the word timings of a completed narration, optionally shifted by an offset",
		Tags:        []string{"Narrations"},
	}, s.handleGetNarrationWords)

	huma.Register(s.api, huma.Operation{
		OperationID: "getNarrationCaptions",
		Method:      http.MethodGet,
		Path:        narrationPath + "/captions",
		Summary:     "Get captions",
		Description: "Returns the word timeline of a completed narration as SRT",
		Tags:        []string{"Narrations"},
	}, s.handleGetNarrationCaptions)
}

// === DTOs ===

// CreateNarrationBody is the request body for queueing a narration.
type CreateNarrationBody struct {
	Title     string `json:"title,omitempty" doc:"Optional title, used to name the output files"`
	Text      string `json:"text" doc:"Text to narrate"`
	Narrator  string `json:"narrator,omitempty" doc:"Narrator persona: snoop, mrbeast, gwyneth, male, female or narrator"`
	WordLimit int    `json:"word_limit,omitempty" doc:"Maximum words per synthesis request"`
}

// CreateNarrationInput wraps the create request for Huma.
type CreateNarrationInput struct {
	Body CreateNarrationBody
}

// NarrationResponse is a narration job in API responses.
type NarrationResponse struct {
	ID           string     `json:"id" doc:"Narration ID"`
	Title        string     `json:"title,omitempty" doc:"Title"`
	Narrator     string     `json:"narrator" doc:"Narrator persona"`
	WordLimit    int        `json:"word_limit" doc:"Maximum words per synthesis request"`
	Status       string     `json:"status" doc:"pending, running, completed or failed"`
	WAVPath      string     `json:"wav_path,omitempty" doc:"Path of the exported WAV"`
	MP3Path      string     `json:"mp3_path,omitempty" doc:"Path of the exported MP3"`
	DurationSec  float64    `json:"duration_sec,omitempty" doc:"Track duration in seconds"`
	WordCount    int        `json:"word_count,omitempty" doc:"Number of timed words"`
	ChunkCount   int        `json:"chunk_count,omitempty" doc:"Number of synthesis requests"`
	ArtifactURLs []string   `json:"artifact_urls,omitempty" doc:"Uploaded copies of the outputs"`
	Error        string     `json:"error,omitempty" doc:"Failure message"`
	ErrorCode    string     `json:"error_code,omitempty" doc:"Failure kind"`
	CreatedAt    time.Time  `json:"created_at" doc:"Creation time"`
	StartedAt    *time.Time `json:"started_at,omitempty" doc:"Start time of the latest run"`
	CompletedAt  *time.Time `json:"completed_at,omitempty" doc:"Completion time"`
}

func toNarrationResponse(job *domain.NarrationJob) NarrationResponse {
	return NarrationResponse{
		ID:           job.ID,
		Title:        job.Title,
		Narrator:     string(job.Narrator),
		WordLimit:    job.WordLimit,
		Status:       string(job.Status),
		WAVPath:      job.WAVPath,
		MP3Path:      job.MP3Path,
		DurationSec:  job.DurationSec,
		WordCount:    job.WordCount,
		ChunkCount:   job.ChunkCount,
		ArtifactURLs: job.ArtifactURLs,
		Error:        job.Error,
		ErrorCode:    job.ErrorCode,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
}

// NarrationOutput wraps a narration response for Huma.
type NarrationOutput struct {
	Body NarrationResponse
}

// ListNarrationsInput contains parameters for listing narrations.
type ListNarrationsInput struct {
	Status string `query:"status" doc:"Filter by status"`
	Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum number of jobs"`
}

// ListNarrationsResponse is the list of narrations.
type ListNarrationsResponse struct {
	Narrations []NarrationResponse `json:"narrations" doc:"Narration jobs, newest first"`
}

// ListNarrationsOutput wraps the list response for Huma.
type ListNarrationsOutput struct {
	Body ListNarrationsResponse
}

// NarrationIDInput identifies a narration.
type NarrationIDInput struct {
	ID string `path:"id" doc:"Narration ID"`
}

// WordsInput contains parameters for the word timeline.
type WordsInput struct {
	ID     string  `path:"id" doc:"Narration ID"`
	Offset float64 `query:"offset" minimum:"0" doc:"Seconds to add to every timing, e.g. the length of a preceding title"`
}

// WordsResponse is a word timeline.
type WordsResponse struct {
	ID    string        `json:"id" doc:"Narration ID"`
	Words []domain.Word `json:"words" doc:"Words with start and end times in seconds"`
}

// WordsOutput wraps the words response for Huma.
type WordsOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         WordsResponse
}

// CaptionsOutput is an SRT document.
type CaptionsOutput struct {
	ContentType  string `header:"Content-Type"`
	CacheControl string `header:"Cache-Control"`
	Body         []byte
}

// NarrationStatusOutput is a job whose status may change between requests.
type NarrationStatusOutput struct {
	CacheControl string `header:"Cache-Control"`
	Body         NarrationResponse
}

// === Handlers ===

func (s *Server) handleCreateNarration(ctx context.Context, input *CreateNarrationInput) (*NarrationOutput, error) {
	job, err := s.narrations.CreateJob(ctx, service.CreateNarrationRequest{
		Title:     input.Body.Title,
		Text:      input.Body.Text,
		Narrator:  input.Body.Narrator,
		WordLimit: input.Body.WordLimit,
	})
	if err != nil {
		return nil, err
	}
	return &NarrationOutput{Body: toNarrationResponse(job)}, nil
}

func (s *Server) handleListNarrations(ctx context.Context, input *ListNarrationsInput) (*ListNarrationsOutput, error) {
	jobs, err := s.narrations.ListJobs(ctx, input.Status, input.Limit)
	if err != nil {
		return nil, err
	}

	resp := ListNarrationsResponse{Narrations: make([]NarrationResponse, len(jobs))}
	for i, job := range jobs {
		resp.Narrations[i] = toNarrationResponse(job)
	}
	return &ListNarrationsOutput{Body: resp}, nil
}

func (s *Server) handleGetNarration(ctx context.Context, input *NarrationIDInput) (*NarrationStatusOutput, error) {
	job, err := s.narrations.GetJob(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &NarrationStatusOutput{CacheControl: CacheNoStore, Body: toNarrationResponse(job)}, nil
}

func (s *Server) handleDeleteNarration(ctx context.Context, input *NarrationIDInput) (*struct{}, error) {
	if err := s.narrations.DeleteJob(ctx, input.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleGetNarrationWords(ctx context.Context, input *WordsInput) (*WordsOutput, error) {
	words, err := s.narrations.GetWords(ctx, input.ID, input.Offset)
	if err != nil {
		return nil, err
	}
	return &WordsOutput{
		CacheControl: CacheOneDayPrivate,
		Body:         WordsResponse{ID: input.ID, Words: words},
	}, nil
}

func (s *Server) handleGetNarrationCaptions(ctx context.Context, input *NarrationIDInput) (*CaptionsOutput, error) {
	srt, err := s.narrations.Captions(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &CaptionsOutput{
		ContentType:  "application/x-subrip",
		CacheControl: CacheOneDayPrivate,
		Body:         srt,
	}, nil
}
