// Package api exposes job submission and read-side endpoints over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hmtran/vigil/internal/detect"
	"github.com/hmtran/vigil/internal/jobs"
	"github.com/hmtran/vigil/internal/pipeline"
	"github.com/hmtran/vigil/internal/storage"
)

const maxBodySize = 1 << 20 // 1MB

// Submitter accepts jobs for the worker.
type Submitter interface {
	Submit(jobType, paramsJSON string) (string, error)
}

// AppDeps carries the handler dependencies.
type AppDeps struct {
	Store *storage.Store
	Queue Submitter
	Token string
}

// NewAppHandler builds the router. Everything except /health requires the
// bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/api/jobs/channel", handleSubmitChannel(deps))
		r.Post("/api/jobs/video", handleSubmitVideo(deps))
		r.Get("/api/jobs", handleListJobs(deps))
		r.Get("/api/jobs/{id}", handleGetJob(deps))
		r.Get("/api/channels", handleListChannels(deps))
		r.Get("/api/channels/{id}/videos", handleChannelVideos(deps))
		r.Get("/api/videos/{id}/analyses", handleVideoAnalyses(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// channelJobRequest mirrors ChannelParams with pointer fields so omitted
// values can take defaults without treating zero as a user choice.
type channelJobRequest struct {
	ChannelInput   string `json:"channel_input"`
	MaxVideos      *int   `json:"max_videos"`
	ScrapeComments *bool  `json:"scrape_comments"`
	MinSeverity    *int   `json:"min_severity"`
}

type videoJobRequest struct {
	VideoURL       string `json:"video_url"`
	ScrapeComments *bool  `json:"scrape_comments"`
	MinSeverity    *int   `json:"min_severity"`
}

func handleSubmitChannel(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var req channelJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ChannelInput == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "channel_input is required")
			return
		}

		params := pipeline.ChannelParams{
			ChannelInput:   req.ChannelInput,
			MaxVideos:      pipeline.DefaultMaxVideos,
			ScrapeComments: true,
			MinSeverity:    detect.MinSeverity,
		}
		if req.MaxVideos != nil {
			if *req.MaxVideos < 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "max_videos must be at least 1")
				return
			}
			params.MaxVideos = *req.MaxVideos
		}
		if req.ScrapeComments != nil {
			params.ScrapeComments = *req.ScrapeComments
		}
		if req.MinSeverity != nil {
			if *req.MinSeverity < detect.MinSeverity || *req.MinSeverity > detect.MaxSeverity {
				httpError(w, http.StatusBadRequest, "invalid_request_error",
					"min_severity must be between %d and %d", detect.MinSeverity, detect.MaxSeverity)
				return
			}
			params.MinSeverity = *req.MinSeverity
		}

		submitJob(w, deps.Queue, jobs.TypeChannel, params)
	}
}

func handleSubmitVideo(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var req videoJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.VideoURL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "video_url is required")
			return
		}

		params := pipeline.VideoParams{
			VideoURL:       req.VideoURL,
			ScrapeComments: true,
			MinSeverity:    detect.MinSeverity,
		}
		if req.ScrapeComments != nil {
			params.ScrapeComments = *req.ScrapeComments
		}
		if req.MinSeverity != nil {
			if *req.MinSeverity < detect.MinSeverity || *req.MinSeverity > detect.MaxSeverity {
				httpError(w, http.StatusBadRequest, "invalid_request_error",
					"min_severity must be between %d and %d", detect.MinSeverity, detect.MaxSeverity)
				return
			}
			params.MinSeverity = *req.MinSeverity
		}

		submitJob(w, deps.Queue, jobs.TypeVideo, params)
	}
}

func submitJob(w http.ResponseWriter, queue Submitter, jobType string, params any) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to encode job params: %v", err)
		return
	}

	id, err := queue.Submit(jobType, string(paramsJSON))
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			httpError(w, http.StatusServiceUnavailable, "api_error", "job queue is full, try again later")
			return
		}
		httpError(w, http.StatusInternalServerError, "api_error", "failed to submit job: %v", err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": id,
		"status": storage.JobQueued,
	})
}

// jobView is the wire shape of a job record.
type jobView struct {
	ID         string          `json:"job_id"`
	Type       string          `json:"type"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

func viewJob(j storage.Job) jobView {
	v := jobView{
		ID:         j.ID,
		Type:       j.Type,
		Status:     j.Status,
		CreatedAt:  j.CreatedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
		Error:      j.Error,
	}
	if j.ResultJSON != "" {
		v.Result = json.RawMessage(j.ResultJSON)
	}
	return v
}

func handleGetJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		job, err := deps.Store.GetJob(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no job with id %q", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load job: %v", err)
			return
		}

		writeJSON(w, http.StatusOK, viewJob(job))
	}
}

func handleListJobs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		records, err := deps.Store.ListJobs(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list jobs: %v", err)
			return
		}

		views := make([]jobView, len(records))
		for i, j := range records {
			views[i] = viewJob(j)
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": views})
	}
}

func handleListChannels(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 200)

		channels, err := deps.Store.ListChannels(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list channels: %v", err)
			return
		}
		if channels == nil {
			channels = []storage.Channel{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
	}
}

func handleChannelVideos(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid channel id")
			return
		}

		if _, err := deps.Store.GetChannel(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no channel with id %d", id)
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load channel: %v", err)
			return
		}

		videos, err := deps.Store.VideosForChannel(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list videos: %v", err)
			return
		}
		if videos == nil {
			videos = []storage.Video{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"videos": videos})
	}
}

// analysisView inlines the stored verdict so clients get structured
// matches without a second request.
type analysisView struct {
	ID              int64           `json:"id"`
	ContentType     string          `json:"content_type"`
	Flagged         bool            `json:"is_flagged"`
	HighestSeverity int             `json:"highest_severity"`
	Verdict         json.RawMessage `json:"verdict"`
	CreatedAt       time.Time       `json:"created_at"`
}

func handleVideoAnalyses(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid video id")
			return
		}

		if _, err := deps.Store.GetVideo(id); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "no video with id %d", id)
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load video: %v", err)
			return
		}

		analyses, err := deps.Store.VideoAnalyses(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list analyses: %v", err)
			return
		}

		views := make([]analysisView, len(analyses))
		for i, a := range analyses {
			views[i] = analysisView{
				ID:              a.ID,
				ContentType:     a.ContentType,
				Flagged:         a.Flagged,
				HighestSeverity: a.HighestSeverity,
				Verdict:         json.RawMessage(a.VerdictJSON),
				CreatedAt:       a.CreatedAt,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"analyses": views})
	}
}

// parseIntParam reads a positive integer query parameter with a default
// and an upper bound (0 means unbounded).
func parseIntParam(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}
