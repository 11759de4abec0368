package detect

import (
	"errors"
	"sort"
)

// ErrMissingText marks a collection item that carries no usable text field.
// The aggregator absorbs it (the item is skipped); it is exported so callers
// validating single items can detect the same condition.
var ErrMissingText = errors.New("item has no text field")

// Item is one member of a classified collection, typically a comment.
// Text is the canonical field; CommentText is accepted as a legacy fallback.
type Item struct {
	Author      string `json:"author,omitempty"`
	Text        string `json:"text"`
	CommentText string `json:"comment_text,omitempty"`
	Likes       string `json:"likes,omitempty"`
	Date        string `json:"date,omitempty"`
}

// Body returns the item's text, preferring the canonical field, or
// ErrMissingText when both fields are empty.
func (it Item) Body() (string, error) {
	if it.Text != "" {
		return it.Text, nil
	}
	if it.CommentText != "" {
		return it.CommentText, nil
	}
	return "", ErrMissingText
}

// FlaggedItem pairs a flagged collection member with its verdict.
// Index is the zero-based position in the original input sequence.
type FlaggedItem struct {
	Index   int     `json:"index"`
	Item    Item    `json:"item"`
	Verdict Verdict `json:"verdict"`
}

// CollectionVerdict is the merged result of classifying an ordered sequence
// of items. TotalItems counts every input item; FlaggedCount counts only
// those with a flagged verdict.
type CollectionVerdict struct {
	Flagged         bool          `json:"is_flagged"`
	HighestSeverity int           `json:"highest_severity"`
	Categories      []string      `json:"categories,omitempty"`
	ContentType     string        `json:"content_type"`
	TotalItems      int           `json:"total_items"`
	FlaggedItems    []FlaggedItem `json:"flagged_items,omitempty"`
	FlaggedCount    int           `json:"flagged_count"`
}

// ClassifyComments classifies each item independently and merges flagged
// verdicts into one collection verdict. Items without text are skipped; they
// still count toward TotalItems. FlaggedItems preserves input order.
func (c *Classifier) ClassifyComments(items []Item, minSeverity int) CollectionVerdict {
	cv := CollectionVerdict{
		ContentType: ContentComments,
		TotalItems:  len(items),
	}

	seen := make(map[string]bool)
	for i, item := range items {
		body, err := item.Body()
		if err != nil {
			continue
		}

		v := c.Classify(body, minSeverity)
		if !v.Flagged {
			continue
		}

		cv.FlaggedItems = append(cv.FlaggedItems, FlaggedItem{Index: i, Item: item, Verdict: v})
		cv.FlaggedCount++
		cv.Flagged = true
		if v.HighestSeverity > cv.HighestSeverity {
			cv.HighestSeverity = v.HighestSeverity
		}
		for _, cat := range v.Categories {
			if !seen[cat] {
				seen[cat] = true
				cv.Categories = append(cv.Categories, cat)
			}
		}
	}

	sort.Strings(cv.Categories)
	return cv
}

// MergeCategories folds the per-item verdicts of a collection into one
// per-category summary: max severity, union of keywords, summed counts.
// It is computed on demand so the per-item verdicts stay the source of
// truth.
func MergeCategories(cv CollectionVerdict) map[string]CategoryMatch {
	merged := make(map[string]CategoryMatch, len(cv.Categories))
	keywords := make(map[string]map[string]bool)

	for _, fi := range cv.FlaggedItems {
		for name, match := range fi.Verdict.Matches {
			m := merged[name]
			if match.Severity > m.Severity {
				m.Severity = match.Severity
			}
			m.Count += match.Count
			merged[name] = m

			if keywords[name] == nil {
				keywords[name] = make(map[string]bool)
			}
			for _, kw := range match.Keywords {
				keywords[name][kw] = true
			}
		}
	}

	for name, set := range keywords {
		m := merged[name]
		m.Keywords = make([]string, 0, len(set))
		for kw := range set {
			m.Keywords = append(m.Keywords, kw)
		}
		sort.Strings(m.Keywords)
		merged[name] = m
	}

	return merged
}
