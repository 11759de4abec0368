// Package scrape collects public channel, video and comment data from
// YouTube pages through a headless browser. Callers depend on the Scraper
// interface; tests substitute fakes.
package scrape

import (
	"context"
	"errors"
)

// ErrChannelNotFound is returned when a channel search yields no results.
var ErrChannelNotFound = errors.New("channel not found")

// ChannelInfo is the scraped profile of a channel.
type ChannelInfo struct {
	ChannelID   string
	Name        string
	Subscribers string
	Description string
	URL         string
	Thumbnail   string
}

// VideoInfo is a video as it appears in a channel's video grid.
type VideoInfo struct {
	VideoID    string
	Title      string
	URL        string
	Views      string
	UploadDate string
	Thumbnail  string
}

// VideoDetails is the full watch-page view of a single video.
type VideoDetails struct {
	VideoID     string
	Title       string
	URL         string
	Views       string
	Likes       int64
	UploadDate  string
	Description string
	Thumbnail   string
}

// Comment is one scraped comment thread head.
type Comment struct {
	Author   string
	Text     string
	Likes    string
	Date     string
	Verified bool
	Pinned   bool
}

// Scraper is the browsing boundary the analysis handlers talk to.
type Scraper interface {
	// SearchChannel resolves a channel name, URL or @handle to a channel
	// page URL. Returns ErrChannelNotFound when nothing matches.
	SearchChannel(ctx context.Context, channelInput string) (string, error)
	// ChannelInfo scrapes the channel profile at channelURL.
	ChannelInfo(ctx context.Context, channelURL string) (ChannelInfo, error)
	// ChannelVideos lists up to maxVideos entries from the channel's
	// videos tab, newest first.
	ChannelVideos(ctx context.Context, channelURL string, maxVideos int) ([]VideoInfo, error)
	// VideoDetails scrapes the watch page of a single video.
	VideoDetails(ctx context.Context, videoURL string) (VideoDetails, error)
	// VideoComments collects up to maxComments comment thread heads.
	VideoComments(ctx context.Context, videoURL string, maxComments int) ([]Comment, error)
	// Close releases the browser.
	Close() error
}
