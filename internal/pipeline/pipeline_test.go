package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hmtran/vigil/internal/detect"
	"github.com/hmtran/vigil/internal/scrape"
	"github.com/hmtran/vigil/internal/storage"
	"github.com/hmtran/vigil/internal/transcribe"
)

// fakeScraper serves canned channel and video data.
type fakeScraper struct {
	channelURL string
	info       scrape.ChannelInfo
	videos     []scrape.VideoInfo
	details    map[string]scrape.VideoDetails // keyed by URL
	comments   map[string][]scrape.Comment    // keyed by URL
	detailsErr map[string]error
	closed     bool
}

func (f *fakeScraper) SearchChannel(ctx context.Context, input string) (string, error) {
	if f.channelURL == "" {
		return "", scrape.ErrChannelNotFound
	}
	return f.channelURL, nil
}

func (f *fakeScraper) ChannelInfo(ctx context.Context, channelURL string) (scrape.ChannelInfo, error) {
	return f.info, nil
}

func (f *fakeScraper) ChannelVideos(ctx context.Context, channelURL string, maxVideos int) ([]scrape.VideoInfo, error) {
	if maxVideos < len(f.videos) {
		return f.videos[:maxVideos], nil
	}
	return f.videos, nil
}

func (f *fakeScraper) VideoDetails(ctx context.Context, videoURL string) (scrape.VideoDetails, error) {
	if err := f.detailsErr[videoURL]; err != nil {
		return scrape.VideoDetails{}, err
	}
	d, ok := f.details[videoURL]
	if !ok {
		return scrape.VideoDetails{}, errors.New("no such video")
	}
	return d, nil
}

func (f *fakeScraper) VideoComments(ctx context.Context, videoURL string, maxComments int) ([]scrape.Comment, error) {
	return f.comments[videoURL], nil
}

func (f *fakeScraper) Close() error {
	f.closed = true
	return nil
}

// fakeTranscriber returns a fixed transcript.
type fakeTranscriber struct {
	transcript transcribe.Transcript
	err        error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, videoURL string) (transcribe.Transcript, error) {
	return f.transcript, f.err
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func channelScraper() *fakeScraper {
	return &fakeScraper{
		channelURL: "https://www.youtube.com/@kenhtest",
		info: scrape.ChannelInfo{
			ChannelID:   "@kenhtest",
			Name:        "Kênh Test",
			Subscribers: "12K subscribers",
			URL:         "https://www.youtube.com/@kenhtest",
		},
		videos: []scrape.VideoInfo{
			{VideoID: "vid00000001", Title: "hướng dẫn nấu ăn", URL: watchURL("vid00000001")},
			{VideoID: "vid00000002", Title: "bạo lực trong game", URL: watchURL("vid00000002")},
			{VideoID: "vid00000003", Title: "video thường", URL: watchURL("vid00000003")},
		},
		details: map[string]scrape.VideoDetails{
			watchURL("vid00000001"): {VideoID: "vid00000001", Title: "hướng dẫn nấu ăn", URL: watchURL("vid00000001")},
			watchURL("vid00000002"): {VideoID: "vid00000002", Title: "bạo lực trong game", URL: watchURL("vid00000002")},
			watchURL("vid00000003"): {VideoID: "vid00000003", Title: "video thường", URL: watchURL("vid00000003")},
		},
		comments:   map[string][]scrape.Comment{},
		detailsErr: map[string]error{},
	}
}

func TestProcessChannel(t *testing.T) {
	store := openTestStore(t)
	scraper := channelScraper()
	p := New(store, scraper, detect.NewDefault(), nil)

	result, err := p.ProcessChannel(context.Background(), ChannelParams{
		ChannelInput: "@kenhtest",
		MaxVideos:    3,
		MinSeverity:  1,
	})
	if err != nil {
		t.Fatalf("ProcessChannel: %v", err)
	}

	if result.VideosProcessed != 3 {
		t.Errorf("VideosProcessed = %d, want 3", result.VideosProcessed)
	}
	if result.VideosWithFlaggedContent != 1 {
		t.Errorf("VideosWithFlaggedContent = %d, want 1", result.VideosWithFlaggedContent)
	}
	if result.HighestSeverity != 3 {
		t.Errorf("HighestSeverity = %d, want 3 (violence)", result.HighestSeverity)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v", result.Errors)
	}

	// Every processed video got a stored title analysis, clean ones included.
	videos, err := store.VideosForChannel(result.ChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if len(videos) != 3 {
		t.Fatalf("stored videos = %d, want 3", len(videos))
	}
	for _, v := range videos {
		analyses, err := store.VideoAnalyses(v.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(analyses) != 1 {
			t.Errorf("video %s: analyses = %d, want 1", v.VideoID, len(analyses))
		}
	}
}

func TestProcessChannel_VideoFailureContinues(t *testing.T) {
	store := openTestStore(t)
	scraper := channelScraper()
	scraper.detailsErr[watchURL("vid00000002")] = errors.New("page timed out")
	p := New(store, scraper, detect.NewDefault(), nil)

	result, err := p.ProcessChannel(context.Background(), ChannelParams{
		ChannelInput: "@kenhtest",
		MaxVideos:    3,
		MinSeverity:  1,
	})
	if err != nil {
		t.Fatalf("ProcessChannel: %v", err)
	}

	if result.VideosProcessed != 2 {
		t.Errorf("VideosProcessed = %d, want 2", result.VideosProcessed)
	}
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0], "vid00000002") {
		t.Errorf("Errors = %v, want one entry naming the failed video", result.Errors)
	}
}

func TestProcessChannel_NotFound(t *testing.T) {
	store := openTestStore(t)
	p := New(store, &fakeScraper{}, detect.NewDefault(), nil)

	_, err := p.ProcessChannel(context.Background(), ChannelParams{ChannelInput: "no such channel"})
	if !errors.Is(err, scrape.ErrChannelNotFound) {
		t.Errorf("got %v, want ErrChannelNotFound", err)
	}
}

func TestProcessVideo_WithComments(t *testing.T) {
	store := openTestStore(t)
	scraper := channelScraper()
	scraper.comments[watchURL("vid00000002")] = []scrape.Comment{
		{Author: "user1", Text: "video hay quá"},
		{Author: "user2", Text: "toàn súng với đạn"},
	}
	p := New(store, scraper, detect.NewDefault(), nil)

	result, err := p.ProcessVideo(context.Background(), VideoParams{
		VideoURL:       watchURL("vid00000002"),
		ScrapeComments: true,
		MinSeverity:    1,
	})
	if err != nil {
		t.Fatalf("ProcessVideo: %v", err)
	}

	if !result.Flagged {
		t.Error("expected flagged result")
	}
	if result.HighestSeverity != 3 {
		t.Errorf("HighestSeverity = %d, want 3", result.HighestSeverity)
	}
	wantCats := map[string]bool{"violence": true, "weapons": true}
	for _, c := range result.Categories {
		if !wantCats[c] {
			t.Errorf("unexpected category %q", c)
		}
		delete(wantCats, c)
	}
	if len(wantCats) != 0 {
		t.Errorf("missing categories: %v", wantCats)
	}

	// Title and comment analyses both stored.
	analyses, err := store.VideoAnalyses(result.VideoID)
	if err != nil {
		t.Fatal(err)
	}
	if len(analyses) != 2 {
		t.Fatalf("analyses = %d, want 2", len(analyses))
	}

	comments, err := store.CommentsForVideo(result.VideoID)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 2 {
		t.Errorf("stored comments = %d, want 2", len(comments))
	}

	// The video landed under the placeholder channel.
	v, err := store.GetVideo(result.VideoID)
	if err != nil {
		t.Fatal(err)
	}
	ch, err := store.GetChannel(v.ChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if ch.ChannelID != placeholderChannelID {
		t.Errorf("channel = %q, want placeholder", ch.ChannelID)
	}
}

func TestProcessVideo_InvalidURL(t *testing.T) {
	store := openTestStore(t)
	p := New(store, channelScraper(), detect.NewDefault(), nil)

	if _, err := p.ProcessVideo(context.Background(), VideoParams{VideoURL: "https://example.com/nope"}); err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestProcessVideo_KnownVideoKeepsChannel(t *testing.T) {
	store := openTestStore(t)
	scraper := channelScraper()
	p := New(store, scraper, detect.NewDefault(), nil)

	// First pass stores the video under its real channel.
	channelResult, err := p.ProcessChannel(context.Background(), ChannelParams{ChannelInput: "@kenhtest", MaxVideos: 3})
	if err != nil {
		t.Fatal(err)
	}

	result, err := p.ProcessVideo(context.Background(), VideoParams{VideoURL: watchURL("vid00000001")})
	if err != nil {
		t.Fatalf("ProcessVideo: %v", err)
	}

	v, err := store.GetVideo(result.VideoID)
	if err != nil {
		t.Fatal(err)
	}
	if v.ChannelID != channelResult.ChannelID {
		t.Errorf("channel = %d, want original %d", v.ChannelID, channelResult.ChannelID)
	}
}

func TestProcessVideo_Transcription(t *testing.T) {
	store := openTestStore(t)
	scraper := channelScraper()
	tr := &fakeTranscriber{transcript: transcribe.Transcript{Text: "cách chế tạo bom", Language: "vi"}}
	p := New(store, scraper, detect.NewDefault(), tr)

	result, err := p.ProcessVideo(context.Background(), VideoParams{
		VideoURL:    watchURL("vid00000003"),
		MinSeverity: 1,
	})
	if err != nil {
		t.Fatalf("ProcessVideo: %v", err)
	}

	if !result.Flagged {
		t.Error("expected transcription to flag the video")
	}
	if result.HighestSeverity != 4 {
		t.Errorf("HighestSeverity = %d, want 4 (terrorism)", result.HighestSeverity)
	}

	analyses, err := store.VideoAnalyses(result.VideoID)
	if err != nil {
		t.Fatal(err)
	}
	var transcriptionAnalyses int
	for _, a := range analyses {
		if a.ContentType == detect.ContentTranscription {
			transcriptionAnalyses++
			if a.TranscriptionID == nil {
				t.Error("transcription analysis missing transcription id")
			}
		}
	}
	if transcriptionAnalyses != 1 {
		t.Errorf("transcription analyses = %d, want 1", transcriptionAnalyses)
	}
}

func TestProcessVideo_TranscriberFailureIsNonFatal(t *testing.T) {
	store := openTestStore(t)
	tr := &fakeTranscriber{err: errors.New("server down")}
	p := New(store, channelScraper(), detect.NewDefault(), tr)

	result, err := p.ProcessVideo(context.Background(), VideoParams{VideoURL: watchURL("vid00000001")})
	if err != nil {
		t.Fatalf("ProcessVideo: %v", err)
	}
	if len(result.Errors) != 1 {
		t.Errorf("Errors = %v, want one transcription entry", result.Errors)
	}
}

func TestPipelineClose(t *testing.T) {
	store := openTestStore(t)
	scraper := channelScraper()
	p := New(store, scraper, detect.NewDefault(), nil)

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !scraper.closed {
		t.Error("scraper not closed")
	}
}
