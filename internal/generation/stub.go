package generation

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

const defaultWordsPerSecond = 2.5

// StubClient produces deterministic content without calling any external
// service. Used when no generation API key is configured, and in tests.
type StubClient struct {
	wordsPerSecond float64
}

var _ Client = (*StubClient)(nil)

func NewStubClient() *StubClient {
	return &StubClient{wordsPerSecond: defaultWordsPerSecond}
}

func (c *StubClient) Generate(_ context.Context, req Request) (*Result, error) {
	seconds := req.MaxSeconds
	if seconds == 0 {
		seconds = 60
	}
	if req.MinSeconds > 0 {
		seconds = (req.MinSeconds + req.MaxSeconds) / 2
	}

	wordTarget := int(float64(seconds) * c.wordsPerSecond)
	script := buildScript(req.Prompt, req.Audience, wordTarget)
	title := buildTitle(req.Prompt)

	return &Result{
		Script:       script,
		Title:        title,
		Description:  fmt.Sprintf("An explainer on %s.", req.Prompt),
		Tags:         buildTags(req.Prompt),
		ThumbnailURL: "https://placehold.co/1280x720?text=" + url.QueryEscape(title),
	}, nil
}

func buildScript(prompt, audience string, wordTarget int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Here's what you need to know about %s.", prompt))
	if audience != "" {
		b.WriteString(fmt.Sprintf(" This one's for %s.", audience))
	}

	filler := fmt.Sprintf(" Let's break down %s step by step.", prompt)
	for wordCount(b.String()) < wordTarget {
		b.WriteString(filler)
	}

	return b.String()
}

func buildTitle(prompt string) string {
	title := strings.TrimSpace(prompt)
	if title == "" {
		return "Untitled"
	}
	if len(title) > 80 {
		title = title[:80]
	}
	return strings.ToUpper(title[:1]) + title[1:]
}

func buildTags(prompt string) []string {
	var tags []string
	seen := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(prompt)) {
		word = strings.Trim(word, ".,!?\"'")
		if len(word) < 4 || seen[word] {
			continue
		}
		seen[word] = true
		tags = append(tags, word)
		if len(tags) == 5 {
			break
		}
	}
	return tags
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
