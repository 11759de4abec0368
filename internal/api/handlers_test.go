package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hmtran/vigil/internal/jobs"
	"github.com/hmtran/vigil/internal/storage"
)

const testToken = "test-token"

func newTestHandler(t *testing.T) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	queue := jobs.NewQueue(store, 4)
	handler := NewAppHandler(AppDeps{Store: store, Queue: queue, Token: testToken})
	return handler, store
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealthUnauthenticated(t *testing.T) {
	handler, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	handler, _ := newTestHandler(t)

	for _, path := range []string{"/api/jobs", "/api/channels"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status = %d, want 401", path, rec.Code)
		}

		req = httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s with bad token: status = %d, want 401", path, rec.Code)
		}
	}
}

func TestSubmitChannelJob(t *testing.T) {
	handler, store := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/api/jobs/channel",
		`{"channel_input":"@kenhtest","max_videos":3,"min_severity":2}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	id, _ := body["job_id"].(string)
	if id == "" {
		t.Fatalf("response missing job_id: %v", body)
	}

	j, err := store.GetJob(id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Type != jobs.TypeChannel || j.Status != storage.JobQueued {
		t.Errorf("job = %+v", j)
	}
	if !strings.Contains(j.ParamsJSON, `"max_videos":3`) || !strings.Contains(j.ParamsJSON, `"min_severity":2`) {
		t.Errorf("params = %s", j.ParamsJSON)
	}
}

func TestSubmitChannelJob_Defaults(t *testing.T) {
	handler, store := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/api/jobs/channel", `{"channel_input":"@kenhtest"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	id := decodeBody(t, rec)["job_id"].(string)
	j, err := store.GetJob(id)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(j.ParamsJSON, `"max_videos":5`) ||
		!strings.Contains(j.ParamsJSON, `"min_severity":1`) ||
		!strings.Contains(j.ParamsJSON, `"scrape_comments":true`) {
		t.Errorf("params = %s, want defaults applied", j.ParamsJSON)
	}
}

func TestSubmitChannelJob_Validation(t *testing.T) {
	handler, _ := newTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing channel_input", `{}`},
		{"max_videos zero", `{"channel_input":"x","max_videos":0}`},
		{"min_severity too low", `{"channel_input":"x","min_severity":0}`},
		{"min_severity too high", `{"channel_input":"x","min_severity":5}`},
		{"malformed body", `{`},
	}
	for _, tt := range tests {
		rec := doRequest(t, handler, http.MethodPost, "/api/jobs/channel", tt.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, rec.Code)
		}
	}
}

func TestSubmitVideoJob(t *testing.T) {
	handler, store := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/api/jobs/video",
		`{"video_url":"https://www.youtube.com/watch?v=abc123","scrape_comments":false}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	id := decodeBody(t, rec)["job_id"].(string)
	j, err := store.GetJob(id)
	if err != nil {
		t.Fatal(err)
	}
	if j.Type != jobs.TypeVideo {
		t.Errorf("type = %q", j.Type)
	}
	if !strings.Contains(j.ParamsJSON, `"scrape_comments":false`) {
		t.Errorf("params = %s", j.ParamsJSON)
	}
}

func TestSubmitVideoJob_RequiresURL(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/api/jobs/video", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitJob_QueueFull(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	queue := jobs.NewQueue(store, 1)
	handler := NewAppHandler(AppDeps{Store: store, Queue: queue, Token: testToken})

	first := doRequest(t, handler, http.MethodPost, "/api/jobs/video", `{"video_url":"u1"}`)
	if first.Code != http.StatusAccepted {
		t.Fatalf("first submit: %d", first.Code)
	}

	second := doRequest(t, handler, http.MethodPost, "/api/jobs/video", `{"video_url":"u2"}`)
	if second.Code != http.StatusServiceUnavailable {
		t.Errorf("second submit: status = %d, want 503", second.Code)
	}
}

func TestGetJob(t *testing.T) {
	handler, store := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodPost, "/api/jobs/video", `{"video_url":"u"}`)
	id := decodeBody(t, rec)["job_id"].(string)

	if err := store.MarkJobRunning(id); err != nil {
		t.Fatal(err)
	}
	if err := store.CompleteJob(id, `{"video_id":9,"is_flagged":true}`); err != nil {
		t.Fatal(err)
	}

	got := doRequest(t, handler, http.MethodGet, "/api/jobs/"+id, "")
	if got.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", got.Code, got.Body.String())
	}

	body := decodeBody(t, got)
	if body["status"] != storage.JobCompleted {
		t.Errorf("status = %v", body["status"])
	}
	result, ok := body["result"].(map[string]any)
	if !ok {
		t.Fatalf("result = %v, want embedded object", body["result"])
	}
	if result["is_flagged"] != true {
		t.Errorf("result = %v", result)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := doRequest(t, handler, http.MethodGet, "/api/jobs/no-such-job", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListJobs(t *testing.T) {
	handler, _ := newTestHandler(t)

	doRequest(t, handler, http.MethodPost, "/api/jobs/video", `{"video_url":"u1"}`)
	doRequest(t, handler, http.MethodPost, "/api/jobs/video", `{"video_url":"u2"}`)

	rec := doRequest(t, handler, http.MethodGet, "/api/jobs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	body := decodeBody(t, rec)
	list, ok := body["jobs"].([]any)
	if !ok || len(list) != 2 {
		t.Errorf("jobs = %v, want 2 entries", body["jobs"])
	}
}

func TestChannelVideos(t *testing.T) {
	handler, store := newTestHandler(t)

	chID, err := store.UpsertChannel(storage.Channel{ChannelID: "UC1", Name: "Kênh"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpsertVideo(storage.Video{VideoID: "v1", ChannelID: chID, Title: "t"}); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, handler, http.MethodGet, "/api/channels/1/videos", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if list, ok := body["videos"].([]any); !ok || len(list) != 1 {
		t.Errorf("videos = %v", body["videos"])
	}

	missing := doRequest(t, handler, http.MethodGet, "/api/channels/99/videos", "")
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing channel: status = %d, want 404", missing.Code)
	}
}

func TestVideoAnalyses(t *testing.T) {
	handler, store := newTestHandler(t)

	chID, _ := store.UpsertChannel(storage.Channel{ChannelID: "UC1", Name: "Kênh"})
	vidID, _ := store.UpsertVideo(storage.Video{VideoID: "v1", ChannelID: chID, Title: "t"})
	if _, err := store.SaveAnalysis(storage.Analysis{
		VideoID:         vidID,
		ContentType:     "title",
		Flagged:         true,
		HighestSeverity: 3,
		VerdictJSON:     `{"is_flagged":true,"highest_severity":3}`,
	}, nil); err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, handler, http.MethodGet, "/api/videos/1/analyses", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	list, ok := body["analyses"].([]any)
	if !ok || len(list) != 1 {
		t.Fatalf("analyses = %v", body["analyses"])
	}
	first := list[0].(map[string]any)
	if first["is_flagged"] != true {
		t.Errorf("analysis = %v", first)
	}
	if _, ok := first["verdict"].(map[string]any); !ok {
		t.Errorf("verdict = %v, want embedded object", first["verdict"])
	}

	missing := doRequest(t, handler, http.MethodGet, "/api/videos/99/analyses", "")
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing video: status = %d, want 404", missing.Code)
	}
}
