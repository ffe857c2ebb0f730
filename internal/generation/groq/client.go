// Package groq generates scripts and metadata through the Groq chat API.
package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/conneroisu/groq-go"

	"clipflow/internal/generation"
	"clipflow/internal/provider"
	"clipflow/pkg/prompts"
)

const maxTitleLength = 100

type Client struct {
	client  *groq.Client
	model   groq.ChatModel
	prompts *prompts.Prompts
}

var _ generation.Client = (*Client)(nil)

func NewClient(apiKey, model string, p *prompts.Prompts) (*Client, error) {
	client, err := groq.NewClient(apiKey)
	if err != nil {
		return nil, fmt.Errorf("create groq client: %w", err)
	}

	return &Client{
		client:  client,
		model:   groq.ChatModel(model),
		prompts: p,
	}, nil
}

type contentResponse struct {
	Script      string   `json:"script"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

func (c *Client) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	userPrompt, err := c.prompts.RenderRequest(prompts.RequestParams{
		Prompt:     req.Prompt,
		Audience:   req.Audience,
		MinSeconds: req.MinSeconds,
		MaxSeconds: req.MaxSeconds,
	})
	if err != nil {
		return nil, provider.Permanent(fmt.Errorf("render prompt: %w", err))
	}

	resp, err := c.client.ChatCompletion(ctx, groq.ChatCompletionRequest{
		Model: c.model,
		Messages: []groq.ChatCompletionMessage{
			{Role: groq.RoleSystem, Content: c.prompts.SystemGeneration()},
			{Role: groq.RoleUser, Content: userPrompt},
		},
		ResponseFormat: &groq.ChatResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, provider.Transient(fmt.Errorf("generate: %w", err))
	}

	if len(resp.Choices) == 0 {
		return nil, provider.Transientf("no response")
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return nil, provider.Transientf("empty response")
	}

	var parsed contentResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, provider.Transient(fmt.Errorf("parse response: %w", err))
	}
	if parsed.Script == "" {
		return nil, provider.Transientf("response missing script")
	}

	title := cleanTitle(parsed.Title, req.Prompt)

	return &generation.Result{
		Script:       parsed.Script,
		Title:        title,
		Description:  strings.TrimSpace(parsed.Description),
		Tags:         cleanTags(parsed.Tags),
		ThumbnailURL: thumbnailURL(title),
	}, nil
}

// thumbnailURL produces a placeholder card for review. Real thumbnail
// generation needs an image model the chat API does not offer.
func thumbnailURL(title string) string {
	return "https://placehold.co/1280x720?text=" + url.QueryEscape(title)
}

func cleanTitle(raw, fallback string) string {
	title := strings.TrimSpace(raw)
	title = strings.Trim(title, "\"'")

	if idx := strings.Index(title, "\n"); idx > 0 {
		title = title[:idx]
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = fallback
	}
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}

	return title
}

func cleanTags(tags []string) []string {
	result := make([]string, 0, len(tags))
	seen := make(map[string]bool)

	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		tag = strings.Trim(tag, "#")
		tag = strings.ToLower(tag)

		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		result = append(result, tag)
	}

	return result
}
