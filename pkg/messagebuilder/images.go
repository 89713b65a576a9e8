package messagebuilder

import (
	"fmt"
	"path"
	"regexp"
)

// imageURLPattern matches http(s) URLs ending in a common image
// extension, the de-duplication unit for the image placeholder strategy
// (spec §4.8).
var imageURLPattern = regexp.MustCompile(`https?://\S+?\.(?:png|jpe?g|gif|webp|svg)\b`)

// imageTracker records which image URLs have already been shown verbatim
// anywhere in the projection, so later occurrences can be collapsed to a
// placeholder.
type imageTracker struct {
	seen map[string]bool
}

func newImageTracker() *imageTracker {
	return &imageTracker{seen: make(map[string]bool)}
}

// findImageURLs returns every distinct image URL in text, in first-seen
// order.
func findImageURLs(text string) []string {
	matches := imageURLPattern.FindAllString(text, -1)
	if matches == nil {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// collapseToolResultImages rewrites every image URL in text: the first
// occurrence across the whole projection is left verbatim (and marked
// seen); subsequent occurrences of the same URL become a compact
// placeholder.
func (t *imageTracker) collapseToolResultImages(text, toolName, eventID string) string {
	return imageURLPattern.ReplaceAllStringFunc(text, func(url string) string {
		if !t.seen[url] {
			t.seen[url] = true
			return url
		}
		return fmt.Sprintf("[Image: %s | tool: %s | event: %s]", path.Base(url), toolName, eventID)
	})
}

// markSeenOnly records every image URL in text as seen without rewriting
// it; used for images embedded in user text, which are never rewritten in
// place (spec §4.8).
func (t *imageTracker) markSeenOnly(text string) {
	for _, url := range findImageURLs(text) {
		t.seen[url] = true
	}
}
