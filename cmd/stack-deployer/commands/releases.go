package commands

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/pitchlab/stack-deployer/internal/config"
	"github.com/pitchlab/stack-deployer/internal/dao/releasedao"
	"github.com/pitchlab/stack-deployer/internal/di"
	"github.com/pitchlab/stack-deployer/internal/errors"
	"github.com/pitchlab/stack-deployer/internal/models"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// ReleasesCommand returns the releases command for browsing recorded deploys
func ReleasesCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "releases",
		Usage: "Show recorded deploys for the application",
		Description: `Lists deploys recorded in the release-history table, newest first.
Requires history.enabled in the deploy manifest; backend and frontend
deploys that ran while history was disabled are not recorded.

Examples:
  # Last 10 releases across both pipelines
  stack-deployer releases

  # Backend releases only
  stack-deployer releases --pipeline backend

  # Only the most recent release per pipeline
  stack-deployer releases --latest

  # Machine-readable
  stack-deployer releases --json`,
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "pipeline",
				Aliases: []string{"p"},
				Usage:   "Limit to one pipeline (backend or frontend)",
			},
			&cli.BoolFlag{
				Name:  "latest",
				Usage: "Show only the most recent release per pipeline",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of releases to show",
				Value:   10,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: releasesAction,
	}
}

func releasesAction(c *cli.Context) error {
	ctx := c.Context

	cfg, err := loadManifest(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("%w: release history is not enabled; set history.enabled in the deploy manifest", errors.ErrInvalidConfig)
	}

	pipeline := c.String("pipeline")
	if pipeline != "" && pipeline != models.PipelineBackend && pipeline != models.PipelineFrontend {
		return fmt.Errorf("%w: unknown pipeline %q, expected %s or %s",
			errors.ErrInvalidConfig, pipeline, models.PipelineBackend, models.PipelineFrontend)
	}

	container, err := di.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}

	handler := &releasesHandler{
		cfg: cfg,
		dao: di.MustGet[*releasedao.DAO](container),
		out: c.App.Writer,
	}

	return handler.run(ctx, releasesInput{
		Pipeline: pipeline,
		Latest:   c.Bool("latest"),
		Limit:    c.Int("limit"),
		JSON:     c.Bool("json"),
	})
}

type releasesHandler struct {
	cfg *config.Config
	dao *releasedao.DAO
	out io.Writer
}

type releasesInput struct {
	Pipeline string
	Latest   bool
	Limit    int
	JSON     bool
}

// releaseView is the render shape for one recorded deploy.
type releaseView struct {
	ID             string     `json:"id"`
	App            string     `json:"app"`
	Pipeline       string     `json:"pipeline"`
	Status         string     `json:"status"`
	Version        string     `json:"version,omitempty"`
	Bucket         string     `json:"bucket,omitempty"`
	Key            string     `json:"key,omitempty"`
	DistributionID string     `json:"distribution_id,omitempty"`
	InvalidationID string     `json:"invalidation_id,omitempty"`
	Error          string     `json:"error,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

func newReleaseView(record releasedao.Record) releaseView {
	view := releaseView{
		ID:             record.GetID().String(),
		App:            record.App,
		Pipeline:       record.Pipeline,
		Status:         string(record.Status),
		Version:        record.Version,
		Bucket:         record.Bucket,
		Key:            record.Key,
		DistributionID: record.DistributionID,
		InvalidationID: record.InvalidationID,
		StartedAt:      time.Unix(record.CreatedAt, 0).UTC(),
	}
	if record.ErrorMsg != nil {
		view.Error = *record.ErrorMsg
	}
	if record.FinishedAt != nil {
		finished := time.Unix(*record.FinishedAt, 0).UTC()
		view.FinishedAt = &finished
	}
	return view
}

func (h *releasesHandler) run(ctx context.Context, input releasesInput) error {
	records, err := h.query(ctx, input)
	if err != nil {
		return err
	}

	views := make([]releaseView, 0, len(records))
	for _, record := range records {
		views = append(views, newReleaseView(record))
	}

	if input.JSON {
		return printJSON(h.out, views)
	}

	if len(views) == 0 {
		fmt.Fprintln(h.out, "No releases recorded yet")
		return nil
	}

	fmt.Fprintln(h.out)
	fmt.Fprintf(h.out, "Releases for %s\n", h.cfg.App)
	fmt.Fprintln(h.out, strings.Repeat("=", 60))
	for _, view := range views {
		detail := view.Version
		if detail == "" {
			detail = view.DistributionID
		}
		fmt.Fprintf(h.out, "  %s  %-8s  %-11s  %s\n",
			view.StartedAt.Format("2006-01-02 15:04:05"), view.Pipeline, view.Status, detail)
		if view.Error != "" {
			fmt.Fprintf(h.out, "    error: %s\n", view.Error)
		}
	}

	return nil
}

func (h *releasesHandler) query(ctx context.Context, input releasesInput) ([]releasedao.Record, error) {
	if input.Latest {
		records, err := h.dao.QueryLatest(ctx, h.cfg.App)
		if err != nil {
			return nil, err
		}
		if input.Pipeline == "" {
			return records, nil
		}
		filtered := make([]releasedao.Record, 0, len(records))
		for _, record := range records {
			if record.Pipeline == input.Pipeline {
				filtered = append(filtered, record)
			}
		}
		return filtered, nil
	}

	pipelines := []string{models.PipelineBackend, models.PipelineFrontend}
	if input.Pipeline != "" {
		pipelines = []string{input.Pipeline}
	}

	var records []releasedao.Record
	for _, pipeline := range pipelines {
		page, err := h.dao.QueryRecent(ctx, releasedao.NewPK(h.cfg.App, pipeline), input.Limit)
		if err != nil {
			return nil, err
		}
		records = append(records, page...)
	}

	// KSUID sort keys order by creation time, so newest first across
	// pipelines is descending SK
	slices.SortFunc(records, func(a, b releasedao.Record) int {
		return strings.Compare(b.SK, a.SK)
	})
	if input.Limit > 0 && len(records) > input.Limit {
		records = records[:input.Limit]
	}

	return records, nil
}
