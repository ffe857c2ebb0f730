package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"clipflow/internal/app"
	"clipflow/internal/automation"
	"clipflow/pkg/config"
)

var (
	oncePrompt   string
	onceAudience string
	oncePublish  bool
	onceWait     time.Duration
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single request through the pipeline",
	Long: `Submit one prompt, generate content, render it, and wait for the
render to finish. With --publish the result is approved and published
immediately; otherwise it stops at ready_for_review.`,
	RunE: runOnce,
}

func init() {
	onceCmd.Flags().StringVarP(&oncePrompt, "prompt", "p", "", "Prompt for the video")
	onceCmd.Flags().StringVarP(&onceAudience, "audience", "a", "", "Target audience")
	onceCmd.Flags().BoolVarP(&oncePublish, "publish", "u", false, "Approve and publish once rendered")
	onceCmd.Flags().DurationVarP(&onceWait, "wait", "w", 30*time.Minute, "How long to wait for the render")
	rootCmd.AddCommand(onceCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	if oncePrompt == "" {
		return errors.New("please provide --prompt")
	}

	ctx := cmd.Context()
	cfg := config.Load(ctx)

	service, err := app.BuildService(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = service.Close() }()

	orchestrator := service.Orchestrator()

	slog.Info("Submitting request...")
	request, err := orchestrator.Submit(ctx, automation.SubmitInput{
		Prompt:         oncePrompt,
		TargetAudience: onceAudience,
		MinSeconds:     cfg.Generation.MinSeconds,
		MaxSeconds:     cfg.Generation.MaxSeconds,
	})
	if err != nil {
		return err
	}
	if request.Status != automation.StatusGenerated {
		return fmt.Errorf("generation failed: %s", request.LastError)
	}
	slog.Info("Content generated", "id", request.ID, "title", request.Title)

	request, err = orchestrator.SubmitRender(ctx, request.ID)
	if err != nil {
		return err
	}
	if request.Status != automation.StatusRendering {
		return fmt.Errorf("render submission failed: %s", request.LastError)
	}
	slog.Info("Render submitted, waiting...", "job_id", request.RenderJobID)

	request, err = waitForRender(ctx, service, request.ID)
	if err != nil {
		return err
	}
	slog.Info("Render finished", "video_url", request.RenderedVideoURL)

	if !oncePublish {
		slog.Info("Request is ready for review", "id", request.ID)
		return nil
	}

	if _, err := orchestrator.Approve(ctx, request.ID); err != nil {
		return err
	}
	request, err = orchestrator.Publish(ctx, request.ID)
	if err != nil {
		return err
	}
	if request.Status != automation.StatusPublished {
		return fmt.Errorf("publish failed: %s", request.LastError)
	}

	slog.Info("Published", "url", request.PublishedURL)
	return nil
}

func waitForRender(ctx context.Context, service *app.Service, id string) (*automation.AutomationRequest, error) {
	deadline := time.Now().Add(onceWait)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		if _, err := service.Poller().RunOnce(ctx); err != nil && !errors.Is(err, automation.ErrCycleInProgress) {
			return nil, err
		}

		request, err := service.Orchestrator().Get(ctx, id)
		if err != nil {
			return nil, err
		}
		switch request.Status {
		case automation.StatusReadyForReview:
			return request, nil
		case automation.StatusRenderFailed:
			return nil, fmt.Errorf("render failed: %s", request.LastError)
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("render did not finish within %s", onceWait)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
