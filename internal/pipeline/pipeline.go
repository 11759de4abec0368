// Package pipeline runs the scrape-store-classify flow for one job.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hmtran/vigil/internal/detect"
	"github.com/hmtran/vigil/internal/scrape"
	"github.com/hmtran/vigil/internal/storage"
	"github.com/hmtran/vigil/internal/transcribe"
)

// Defaults applied when params omit a field.
const (
	DefaultMaxVideos   = 5
	DefaultMaxComments = 20
)

// placeholderChannelID keys the synthetic channel that owns videos whose
// channel could not be resolved.
const placeholderChannelID = "unknown"

// ChannelParams selects a channel analysis run.
type ChannelParams struct {
	ChannelInput   string `json:"channel_input"`
	MaxVideos      int    `json:"max_videos"`
	ScrapeComments bool   `json:"scrape_comments"`
	MinSeverity    int    `json:"min_severity"`
}

// VideoParams selects a single video analysis run.
type VideoParams struct {
	VideoURL       string `json:"video_url"`
	ScrapeComments bool   `json:"scrape_comments"`
	MinSeverity    int    `json:"min_severity"`
}

// ChannelResult summarizes a channel run. Errors collects per-video
// failures that did not stop the run.
type ChannelResult struct {
	ChannelID                int64    `json:"channel_id"`
	VideosProcessed          int      `json:"videos_processed"`
	VideosWithFlaggedContent int      `json:"videos_with_flagged_content"`
	HighestSeverity          int      `json:"highest_severity"`
	Categories               []string `json:"categories"`
	Errors                   []string `json:"errors"`
}

// VideoResult summarizes a single video run.
type VideoResult struct {
	VideoID         int64    `json:"video_id"`
	Flagged         bool     `json:"is_flagged"`
	HighestSeverity int      `json:"highest_severity"`
	Categories      []string `json:"categories"`
	Errors          []string `json:"errors"`
}

// Pipeline wires the scraper, the store and the classifier for the span of
// one job. Resources are owned by the pipeline and released by Close.
type Pipeline struct {
	store       *storage.Store
	scraper     scrape.Scraper
	classifier  *detect.Classifier
	transcriber transcribe.Transcriber // optional
	maxComments int
	logger      *slog.Logger
}

// New creates a Pipeline. transcriber may be nil; transcription is skipped
// without one.
func New(store *storage.Store, scraper scrape.Scraper, classifier *detect.Classifier, transcriber transcribe.Transcriber) *Pipeline {
	return &Pipeline{
		store:       store,
		scraper:     scraper,
		classifier:  classifier,
		transcriber: transcriber,
		maxComments: DefaultMaxComments,
		logger:      slog.Default(),
	}
}

// Close releases the pipeline's scraper and store.
func (p *Pipeline) Close() error {
	err := p.scraper.Close()
	if closeErr := p.store.Close(); err == nil {
		err = closeErr
	}
	return err
}

// ProcessChannel resolves the channel, stores up to MaxVideos of its
// videos and classifies each one. A failure on one video is recorded in
// Errors and the run continues; only channel-level failures abort.
func (p *Pipeline) ProcessChannel(ctx context.Context, params ChannelParams) (ChannelResult, error) {
	var result ChannelResult

	maxVideos := params.MaxVideos
	if maxVideos <= 0 {
		maxVideos = DefaultMaxVideos
	}

	channelURL, err := p.scraper.SearchChannel(ctx, params.ChannelInput)
	if err != nil {
		return result, fmt.Errorf("resolving channel %q: %w", params.ChannelInput, err)
	}

	info, err := p.scraper.ChannelInfo(ctx, channelURL)
	if err != nil {
		return result, fmt.Errorf("scraping channel %s: %w", channelURL, err)
	}

	channelID, err := p.store.UpsertChannel(storage.Channel{
		ChannelID:   info.ChannelID,
		Name:        info.Name,
		Subscribers: info.Subscribers,
		Description: info.Description,
		URL:         info.URL,
		Thumbnail:   info.Thumbnail,
	})
	if err != nil {
		return result, fmt.Errorf("storing channel: %w", err)
	}
	result.ChannelID = channelID

	videos, err := p.scraper.ChannelVideos(ctx, channelURL, maxVideos)
	if err != nil {
		return result, fmt.Errorf("listing channel videos: %w", err)
	}

	seen := make(map[string]bool)
	for _, v := range videos {
		p.logger.Info("processing video", "video_id", v.VideoID, "title", v.Title)

		outcome, err := p.processOne(ctx, channelID, v.URL, params.ScrapeComments, params.MinSeverity)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("video %s: %v", v.VideoID, err))
			continue
		}
		result.VideosProcessed++
		if outcome.Flagged {
			result.VideosWithFlaggedContent++
		}
		if outcome.HighestSeverity > result.HighestSeverity {
			result.HighestSeverity = outcome.HighestSeverity
		}
		for _, cat := range outcome.Categories {
			if !seen[cat] {
				seen[cat] = true
				result.Categories = append(result.Categories, cat)
			}
		}
	}
	sort.Strings(result.Categories)

	return result, nil
}

// ProcessVideo stores and classifies a single video by URL. Videos whose
// channel is unknown are attached to a placeholder channel row.
func (p *Pipeline) ProcessVideo(ctx context.Context, params VideoParams) (VideoResult, error) {
	var result VideoResult

	externalID := scrape.VideoIDFromURL(params.VideoURL)
	if externalID == "" {
		return result, fmt.Errorf("invalid video URL: %q", params.VideoURL)
	}

	// Known videos keep their resolved channel; new ones land under the
	// placeholder since a watch page alone does not identify its channel.
	var channelID int64
	existing, err := p.store.FindVideoByExternalID(externalID)
	switch {
	case err == nil:
		channelID = existing.ChannelID
	case errors.Is(err, storage.ErrNotFound):
		channelID, err = p.placeholderChannel()
		if err != nil {
			return result, fmt.Errorf("preparing placeholder channel: %w", err)
		}
	default:
		return result, fmt.Errorf("looking up video %s: %w", externalID, err)
	}

	outcome, err := p.processOne(ctx, channelID, params.VideoURL, params.ScrapeComments, params.MinSeverity)
	if err != nil {
		return result, err
	}

	result.VideoID = outcome.VideoID
	result.Flagged = outcome.Flagged
	result.HighestSeverity = outcome.HighestSeverity
	result.Categories = outcome.Categories

	if p.transcriber != nil {
		if err := p.transcribeAndClassify(ctx, outcome.VideoID, params.VideoURL, params.MinSeverity, &result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("transcription: %v", err))
		}
	}

	return result, nil
}

// videoOutcome is the classification summary of one stored video.
type videoOutcome struct {
	VideoID         int64
	Flagged         bool
	HighestSeverity int
	Categories      []string
}

// processOne scrapes one video, upserts it under channelID and persists a
// title analysis plus, when requested, a comment collection analysis.
func (p *Pipeline) processOne(ctx context.Context, channelID int64, videoURL string, scrapeComments bool, minSeverity int) (videoOutcome, error) {
	var outcome videoOutcome

	details, err := p.scraper.VideoDetails(ctx, videoURL)
	if err != nil {
		return outcome, fmt.Errorf("scraping video details: %w", err)
	}

	videoID, err := p.store.UpsertVideo(storage.Video{
		VideoID:     details.VideoID,
		ChannelID:   channelID,
		Title:       details.Title,
		URL:         details.URL,
		Views:       details.Views,
		UploadDate:  details.UploadDate,
		Likes:       details.Likes,
		Description: details.Description,
		Thumbnail:   details.Thumbnail,
	})
	if err != nil {
		return outcome, fmt.Errorf("storing video: %w", err)
	}
	outcome.VideoID = videoID

	titleVerdict := p.classifier.ClassifyTitle(details.Title, minSeverity)
	if _, err := p.saveVerdict(videoID, nil, titleVerdict); err != nil {
		return outcome, fmt.Errorf("storing title analysis: %w", err)
	}
	mergeOutcome(&outcome, titleVerdict.Flagged, titleVerdict.HighestSeverity, titleVerdict.Categories)

	if scrapeComments {
		cv, err := p.classifyComments(ctx, videoID, videoURL, minSeverity)
		if err != nil {
			return outcome, err
		}
		mergeOutcome(&outcome, cv.Flagged, cv.HighestSeverity, cv.Categories)
	}

	return outcome, nil
}

// classifyComments scrapes, stores and classifies a video's comments, then
// persists the merged collection verdict.
func (p *Pipeline) classifyComments(ctx context.Context, videoID int64, videoURL string, minSeverity int) (detect.CollectionVerdict, error) {
	comments, err := p.scraper.VideoComments(ctx, videoURL, p.maxComments)
	if err != nil {
		return detect.CollectionVerdict{}, fmt.Errorf("scraping comments: %w", err)
	}

	stored := make([]storage.Comment, len(comments))
	items := make([]detect.Item, len(comments))
	for i, c := range comments {
		stored[i] = storage.Comment{
			VideoID:  videoID,
			Author:   c.Author,
			Text:     c.Text,
			Likes:    c.Likes,
			Date:     c.Date,
			Verified: c.Verified,
			Pinned:   c.Pinned,
		}
		items[i] = detect.Item{Author: c.Author, Text: c.Text, Likes: c.Likes, Date: c.Date}
	}
	if err := p.store.ReplaceComments(videoID, stored); err != nil {
		return detect.CollectionVerdict{}, fmt.Errorf("storing comments: %w", err)
	}

	cv := p.classifier.ClassifyComments(items, minSeverity)
	if err := p.saveCollectionVerdict(videoID, cv); err != nil {
		return detect.CollectionVerdict{}, fmt.Errorf("storing comment analysis: %w", err)
	}
	return cv, nil
}

// transcribeAndClassify fetches a transcript, stores it and persists a
// transcription analysis tied to the transcript row.
func (p *Pipeline) transcribeAndClassify(ctx context.Context, videoID int64, videoURL string, minSeverity int, result *VideoResult) error {
	transcript, err := p.transcriber.Transcribe(ctx, videoURL)
	if err != nil {
		return err
	}

	transcriptionID, err := p.store.SaveTranscription(storage.Transcription{
		VideoID:  videoID,
		Text:     transcript.Text,
		Language: transcript.Language,
	})
	if err != nil {
		return fmt.Errorf("storing transcription: %w", err)
	}

	v := p.classifier.ClassifyTranscription(transcript.Text, minSeverity)
	if _, err := p.saveVerdict(videoID, &transcriptionID, v); err != nil {
		return fmt.Errorf("storing transcription analysis: %w", err)
	}

	if v.Flagged {
		result.Flagged = true
		if v.HighestSeverity > result.HighestSeverity {
			result.HighestSeverity = v.HighestSeverity
		}
		result.Categories = unionSorted(result.Categories, v.Categories)
	}
	return nil
}

// saveVerdict persists one single-text verdict. A row is written for
// clean runs too so a missing row always means "not analyzed".
func (p *Pipeline) saveVerdict(videoID int64, transcriptionID *int64, v detect.Verdict) (int64, error) {
	verdictJSON, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("encoding verdict: %w", err)
	}

	return p.store.SaveAnalysis(storage.Analysis{
		VideoID:         videoID,
		TranscriptionID: transcriptionID,
		ContentType:     v.ContentType,
		Flagged:         v.Flagged,
		HighestSeverity: v.HighestSeverity,
		VerdictJSON:     string(verdictJSON),
	}, categoryRows(v.Matches))
}

func (p *Pipeline) saveCollectionVerdict(videoID int64, cv detect.CollectionVerdict) error {
	verdictJSON, err := json.Marshal(cv)
	if err != nil {
		return fmt.Errorf("encoding verdict: %w", err)
	}

	_, err = p.store.SaveAnalysis(storage.Analysis{
		VideoID:         videoID,
		ContentType:     cv.ContentType,
		Flagged:         cv.Flagged,
		HighestSeverity: cv.HighestSeverity,
		VerdictJSON:     string(verdictJSON),
	}, categoryRows(detect.MergeCategories(cv)))
	return err
}

// placeholderChannel returns the id of the synthetic channel for videos
// processed outside a channel run, creating it on first use.
func (p *Pipeline) placeholderChannel() (int64, error) {
	return p.store.UpsertChannel(storage.Channel{
		ChannelID:   placeholderChannelID,
		Name:        "Unknown Channel",
		Subscribers: "Unknown",
		Description: "Automatically created for video processing",
		URL:         "#",
	})
}

// categoryRows converts a per-category match map to sorted storage rows.
func categoryRows(matches map[string]detect.CategoryMatch) []storage.AnalysisCategory {
	if len(matches) == 0 {
		return nil
	}

	names := make([]string, 0, len(matches))
	for name := range matches {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]storage.AnalysisCategory, 0, len(names))
	for _, name := range names {
		m := matches[name]
		keywordsJSON, err := json.Marshal(m.Keywords)
		if err != nil {
			keywordsJSON = []byte("[]")
		}
		rows = append(rows, storage.AnalysisCategory{
			Name:         name,
			Severity:     m.Severity,
			KeywordsJSON: string(keywordsJSON),
			Count:        m.Count,
		})
	}
	return rows
}

func mergeOutcome(o *videoOutcome, flagged bool, severity int, categories []string) {
	if !flagged {
		return
	}
	o.Flagged = true
	if severity > o.HighestSeverity {
		o.HighestSeverity = severity
	}
	o.Categories = unionSorted(o.Categories, categories)
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
