package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// searchChannelsFilter is the search filter for channel results only.
const searchChannelsFilter = "EgIQAg%253D%253D"

// YouTube scrapes youtube.com through a headless Chrome instance. One
// YouTube value owns one browser; each operation runs in its own tab.
type YouTube struct {
	browser    context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	scrollWait time.Duration
}

var _ Scraper = (*YouTube)(nil)

// NewYouTube launches a browser. If navTimeout is <= 0, it defaults to 30s.
func NewYouTube(headless bool, navTimeout time.Duration) (*YouTube, error) {
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("lang", "en-US"),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browser, cancelBrowser := chromedp.NewContext(allocCtx)

	// Start the browser now so a missing Chrome binary surfaces here
	// instead of inside the first job.
	if err := chromedp.Run(browser); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	return &YouTube{
		browser: browser,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
		},
		navTimeout: navTimeout,
		scrollWait: 1500 * time.Millisecond,
	}, nil
}

// Close shuts the browser down.
func (s *YouTube) Close() error {
	s.cancel()
	return nil
}

// tab opens a fresh tab bounded by both the caller's context and the
// navigation timeout.
func (s *YouTube) tab(ctx context.Context) (context.Context, context.CancelFunc) {
	tab, cancelTab := chromedp.NewContext(s.browser)
	tab, cancelTimeout := context.WithTimeout(tab, s.navTimeout)

	stop := context.AfterFunc(ctx, cancelTab)
	return tab, func() {
		stop()
		cancelTimeout()
		cancelTab()
	}
}

func (s *YouTube) SearchChannel(ctx context.Context, channelInput string) (string, error) {
	// Full URLs and @handles resolve without a search round-trip.
	if strings.HasPrefix(channelInput, "https://www.youtube.com/") ||
		strings.HasPrefix(channelInput, "https://youtube.com/") {
		return channelInput, nil
	}
	if strings.HasPrefix(channelInput, "@") {
		return "https://www.youtube.com/" + channelInput, nil
	}

	tab, cancel := s.tab(ctx)
	defer cancel()

	searchURL := fmt.Sprintf("https://www.youtube.com/results?search_query=%s&sp=%s",
		url.QueryEscape(channelInput), searchChannelsFilter)

	var channelURL string
	err := chromedp.Run(tab,
		chromedp.Navigate(searchURL),
		chromedp.WaitVisible("ytd-channel-renderer", chromedp.ByQuery),
		chromedp.Evaluate(`(() => {
			const link = document.querySelector("ytd-channel-renderer a#main-link");
			return link ? link.href : "";
		})()`, &channelURL),
	)
	if err != nil {
		return "", fmt.Errorf("searching for channel %q: %w", channelInput, err)
	}
	if channelURL == "" {
		return "", fmt.Errorf("%w: %q", ErrChannelNotFound, channelInput)
	}
	return channelURL, nil
}

func (s *YouTube) ChannelInfo(ctx context.Context, channelURL string) (ChannelInfo, error) {
	tab, cancel := s.tab(ctx)
	defer cancel()

	info := ChannelInfo{URL: channelURL, ChannelID: ChannelIDFromURL(channelURL)}

	err := chromedp.Run(tab,
		chromedp.Navigate(channelURL),
		chromedp.WaitVisible("ytd-channel-name", chromedp.ByQuery),
		chromedp.Evaluate(`(() => {
			const text = sel => {
				const el = document.querySelector(sel);
				return el ? el.textContent.trim() : "";
			};
			const avatar = document.querySelector("img.yt-core-image.yt-spec-avatar-shape__image")
				|| document.querySelector("#avatar img, #channel-header-container img");
			const subs = [...document.querySelectorAll("span")]
				.find(el => /subscriber|người đăng ký/i.test(el.textContent));
			return {
				name: text("ytd-channel-name yt-formatted-string#text") || text("ytd-channel-name"),
				subscribers: subs ? subs.textContent.trim() : "Hidden",
				description: text("yt-description-preview-view-model, #description-container"),
				thumbnail: avatar ? avatar.src : "",
			};
		})()`, &struct {
			Name        *string `json:"name"`
			Subscribers *string `json:"subscribers"`
			Description *string `json:"description"`
			Thumbnail   *string `json:"thumbnail"`
		}{&info.Name, &info.Subscribers, &info.Description, &info.Thumbnail}),
	)
	if err != nil {
		return ChannelInfo{}, fmt.Errorf("scraping channel %s: %w", channelURL, err)
	}
	if info.ChannelID == "" {
		info.ChannelID = ChannelIDFromURL(info.URL)
	}
	return info, nil
}

func (s *YouTube) ChannelVideos(ctx context.Context, channelURL string, maxVideos int) ([]VideoInfo, error) {
	tab, cancel := s.tab(ctx)
	defer cancel()

	videosURL := strings.TrimSuffix(channelURL, "/") + "/videos"
	if err := chromedp.Run(tab,
		chromedp.Navigate(videosURL),
		chromedp.WaitVisible("ytd-rich-item-renderer", chromedp.ByQuery),
	); err != nil {
		return nil, fmt.Errorf("loading videos tab %s: %w", videosURL, err)
	}

	collect := `[...document.querySelectorAll("ytd-rich-item-renderer")].map(el => {
		const title = el.querySelector("#video-title");
		const link = el.querySelector("a#video-title-link, a#thumbnail");
		const meta = el.querySelector("#metadata-line");
		const lines = meta ? meta.innerText.split("\n") : [];
		return {
			title: title ? title.textContent.trim() : "",
			url: link ? link.href : "",
			views: lines.length > 0 ? lines[0] : "",
			upload_date: lines.length > 1 ? lines[1] : "",
		};
	})`

	var scraped []struct {
		Title      string `json:"title"`
		URL        string `json:"url"`
		Views      string `json:"views"`
		UploadDate string `json:"upload_date"`
	}
	// Scroll until the grid stops growing or we have enough entries.
	for prev := -1; ; {
		if err := chromedp.Run(tab, chromedp.Evaluate(collect, &scraped)); err != nil {
			return nil, fmt.Errorf("collecting videos: %w", err)
		}
		if len(scraped) >= maxVideos || len(scraped) == prev {
			break
		}
		prev = len(scraped)
		if err := chromedp.Run(tab,
			chromedp.Evaluate(`window.scrollTo(0, document.documentElement.scrollHeight)`, nil),
			chromedp.Sleep(s.scrollWait),
		); err != nil {
			return nil, fmt.Errorf("scrolling videos tab: %w", err)
		}
	}

	videos := make([]VideoInfo, 0, maxVideos)
	for _, v := range scraped {
		if len(videos) >= maxVideos {
			break
		}
		id := VideoIDFromURL(v.URL)
		if id == "" {
			continue
		}
		videos = append(videos, VideoInfo{
			VideoID:    id,
			Title:      v.Title,
			URL:        v.URL,
			Views:      v.Views,
			UploadDate: v.UploadDate,
			Thumbnail:  fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", id),
		})
	}
	return videos, nil
}

func (s *YouTube) VideoDetails(ctx context.Context, videoURL string) (VideoDetails, error) {
	tab, cancel := s.tab(ctx)
	defer cancel()

	details := VideoDetails{URL: videoURL, VideoID: VideoIDFromURL(videoURL)}

	var likes string
	err := chromedp.Run(tab,
		chromedp.Navigate(videoURL),
		chromedp.WaitVisible("h1.ytd-watch-metadata", chromedp.ByQuery),
		// Expand the description when the control is present.
		chromedp.Evaluate(`(() => {
			const expand = document.querySelector("#description-inline-expander #expand");
			if (expand) expand.click();
			return true;
		})()`, nil),
		chromedp.Evaluate(`(() => {
			const text = sel => {
				const el = document.querySelector(sel);
				return el ? el.textContent.trim() : "";
			};
			const like = document.querySelector("like-button-view-model button");
			return {
				title: text("h1.ytd-watch-metadata yt-formatted-string"),
				views: text(".view-count") || text("#info-container #info span"),
				likes: like ? (like.getAttribute("aria-label") || like.textContent).trim() : text("#vote-count-middle"),
				upload_date: text("ytd-watch-metadata #info-strings yt-formatted-string"),
				description: text("#description-inline-expander #content"),
			};
		})()`, &struct {
			Title       *string `json:"title"`
			Views       *string `json:"views"`
			Likes       *string `json:"likes"`
			UploadDate  *string `json:"upload_date"`
			Description *string `json:"description"`
		}{&details.Title, &details.Views, &likes, &details.UploadDate, &details.Description}),
	)
	if err != nil {
		return VideoDetails{}, fmt.Errorf("scraping video %s: %w", videoURL, err)
	}

	details.Likes = ParseCount(likes)
	if details.VideoID != "" {
		details.Thumbnail = fmt.Sprintf("https://i.ytimg.com/vi/%s/maxresdefault.jpg", details.VideoID)
	}
	return details, nil
}

func (s *YouTube) VideoComments(ctx context.Context, videoURL string, maxComments int) ([]Comment, error) {
	tab, cancel := s.tab(ctx)
	defer cancel()

	if err := chromedp.Run(tab,
		chromedp.Navigate(videoURL),
		chromedp.WaitVisible("h1.ytd-watch-metadata", chromedp.ByQuery),
		// Comments load lazily once the page is scrolled past the player.
		chromedp.Evaluate(`window.scrollTo(0, window.scrollY + 500)`, nil),
		chromedp.WaitVisible("ytd-comments#comments", chromedp.ByQuery),
	); err != nil {
		// Comments disabled or never rendered. Not an error for the caller.
		return nil, nil
	}

	collect := `[...document.querySelectorAll("ytd-comment-thread-renderer")].map(el => {
		const text = sel => {
			const sub = el.querySelector(sel);
			return sub ? sub.textContent.trim() : "";
		};
		return {
			author: text("#author-text"),
			text: text("#content-text"),
			likes: text("#vote-count-middle") || "0",
			date: text("#published-time-text a"),
			is_verified: !!el.querySelector("#author-comment-badge"),
			is_pinned: !!el.querySelector("#pinned-comment-badge"),
		};
	})`

	var scraped []struct {
		Author   string `json:"author"`
		Text     string `json:"text"`
		Likes    string `json:"likes"`
		Date     string `json:"date"`
		Verified bool   `json:"is_verified"`
		Pinned   bool   `json:"is_pinned"`
	}
	for prev := -1; ; {
		if err := chromedp.Run(tab, chromedp.Evaluate(collect, &scraped)); err != nil {
			return nil, fmt.Errorf("collecting comments: %w", err)
		}
		if len(scraped) >= maxComments || len(scraped) == prev {
			break
		}
		prev = len(scraped)
		if err := chromedp.Run(tab,
			chromedp.Evaluate(`window.scrollTo(0, document.documentElement.scrollHeight)`, nil),
			chromedp.Sleep(s.scrollWait),
		); err != nil {
			return nil, fmt.Errorf("scrolling comments: %w", err)
		}
	}

	comments := make([]Comment, 0, len(scraped))
	for _, c := range scraped {
		if len(comments) >= maxComments {
			break
		}
		comments = append(comments, Comment{
			Author:   c.Author,
			Text:     c.Text,
			Likes:    c.Likes,
			Date:     c.Date,
			Verified: c.Verified,
			Pinned:   c.Pinned,
		})
	}
	return comments, nil
}
