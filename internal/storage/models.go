package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrChannelMissing is returned when a video upsert references a channel
// that has no row yet.
var ErrChannelMissing = errors.New("referenced channel does not exist")

// Job statuses. Transitions are monotonic:
// queued -> in_progress -> completed | failed.
const (
	JobQueued     = "queued"
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Job is a durable record of one submitted unit of work. Rows are created by
// submitters and mutated only by the worker; they are never deleted while
// the process lives so submitters can poll terminal states.
type Job struct {
	ID         string
	Type       string
	Status     string
	ParamsJSON string
	ResultJSON string
	Error      string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// Channel is a scraped channel keyed by its external identifier.
type Channel struct {
	ID          int64
	ChannelID   string // external id, unique
	Name        string
	Subscribers string
	Description string
	URL         string
	Thumbnail   string
	ScrapedAt   time.Time
}

// Video is a scraped video keyed by its external identifier and linked to a
// channel row.
type Video struct {
	ID          int64
	VideoID     string // external id, unique
	ChannelID   int64  // internal channel row id
	Title       string
	URL         string
	Views       string
	UploadDate  string
	Likes       int64
	Description string
	Thumbnail   string
}

// Comment is a scraped comment attached to a video row.
type Comment struct {
	ID       int64
	VideoID  int64
	Author   string
	Text     string
	Likes    string
	Date     string
	Verified bool
	Pinned   bool
}

// Transcription is transcribed speech for a video.
type Transcription struct {
	ID        int64
	VideoID   int64
	Text      string
	Language  string
	CreatedAt time.Time
}

// Analysis persists one classification verdict for a video. A row is written
// for every analysis run; Flagged distinguishes clean results from flagged
// ones, so a missing row always means "not analyzed".
type Analysis struct {
	ID              int64
	VideoID         int64
	TranscriptionID *int64
	ContentType     string
	Flagged         bool
	HighestSeverity int
	VerdictJSON     string
	CreatedAt       time.Time
}

// AnalysisCategory is one per-category breakdown row under an analysis.
// Rows exist only for flagged analyses.
type AnalysisCategory struct {
	ID           int64
	AnalysisID   int64
	Name         string
	Severity     int
	KeywordsJSON string
	Count        int
}
