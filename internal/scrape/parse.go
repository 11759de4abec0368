package scrape

import (
	"regexp"
	"strconv"
	"strings"
)

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]+)`),
	regexp.MustCompile(`/shorts/([A-Za-z0-9_-]+)`),
}

// VideoIDFromURL extracts the video id from a watch, youtu.be or shorts
// URL. Returns "" when the URL carries no recognizable id.
func VideoIDFromURL(videoURL string) string {
	for _, re := range videoIDPatterns {
		if m := re.FindStringSubmatch(videoURL); m != nil {
			return m[1]
		}
	}
	return ""
}

var channelIDPattern = regexp.MustCompile(`channel/(UC[\w-]+)`)
var handlePattern = regexp.MustCompile(`@([\w.-]+)`)

// ChannelIDFromURL extracts a stable external id from a channel URL: the
// UC id when present, otherwise the @handle. Returns "" for neither.
func ChannelIDFromURL(channelURL string) string {
	if m := channelIDPattern.FindStringSubmatch(channelURL); m != nil {
		return m[1]
	}
	if m := handlePattern.FindStringSubmatch(channelURL); m != nil {
		return "@" + m[1]
	}
	return ""
}

// ParseCount converts display counts like "1.2K", "3,4 Tr" or "12,345" to
// an absolute number. Returns 0 for empty or unparseable text. Suffixes
// cover both the English and Vietnamese YouTube locales.
func ParseCount(text string) int64 {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0
	}
	// Keep only the leading number-with-suffix token ("1.2K likes" -> "1.2K").
	if i := strings.IndexByte(s, ' '); i > 0 {
		rest := strings.ToLower(strings.TrimSpace(s[i+1:]))
		switch {
		case strings.HasPrefix(rest, "n"), strings.HasPrefix(rest, "tr"), strings.HasPrefix(rest, "t"):
			// "1,2 N" / "3 Tr" / "2 T": Vietnamese thousand/million/billion
			// suffixes separated from the number by a space.
			s = s[:i] + strings.ToUpper(rest[:1])
			if strings.HasPrefix(rest, "tr") {
				s = s[:i] + "M"
			}
		default:
			s = s[:i]
		}
	}

	multiplier := float64(1)
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"), strings.HasSuffix(s, "N"):
		multiplier = 1_000
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		multiplier = 1_000_000
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "B"), strings.HasSuffix(s, "b"), strings.HasSuffix(s, "T"):
		multiplier = 1_000_000_000
		s = s[:len(s)-1]
	}

	if multiplier > 1 {
		// Decimal comma in the vi locale.
		s = strings.ReplaceAll(s, ",", ".")
	} else {
		// Thousands separators in plain counts.
		s = strings.ReplaceAll(s, ",", "")
		s = strings.ReplaceAll(s, ".", "")
	}

	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return int64(n * multiplier)
}
