package commands

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pitchlab/stack-deployer/internal/buildcmd"
	"github.com/pitchlab/stack-deployer/internal/config"
	"github.com/pitchlab/stack-deployer/internal/dao/releasedao"
	"github.com/pitchlab/stack-deployer/internal/di"
	"github.com/pitchlab/stack-deployer/internal/models"
	"github.com/pitchlab/stack-deployer/internal/pipeline"
	"github.com/pitchlab/stack-deployer/internal/services"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

// FrontendCommand returns the frontend command for publishing the static half of the stack
func FrontendCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "frontend",
		Usage: "Build the frontend, mirror it to the site bucket, and invalidate the CDN",
		Description: `Deploys the frontend in three fixed stages:

  1. build      - run the build command inside the project directory
  2. publish    - mirror the build output into the site bucket
  3. invalidate - tell the CDN to discard cached copies of the configured paths

Publishing is a diff: unchanged objects are left alone, new and modified
files are uploaded, and orphaned remote objects are pruned unless --prune
is disabled. A failing stage stops the run; earlier stages are not rolled
back. The invalidation completes asynchronously on the CDN side.

Examples:
  # Build and publish using deploy.yml in the current directory
  stack-deployer frontend

  # Publish an existing build without rebuilding
  stack-deployer frontend --skip-build

  # Show the sync plan without uploading anything
  stack-deployer frontend --dry-run

  # Invalidate specific paths only
  stack-deployer frontend -p "/index.html" -p "/static/*"`,
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "project-dir",
				Usage: "Frontend project directory (overrides manifest)",
			},
			&cli.StringFlag{
				Name:  "bucket",
				Usage: "Site bucket (overrides manifest)",
			},
			&cli.StringFlag{
				Name:    "distribution-id",
				Aliases: []string{"d"},
				Usage:   "CDN distribution to invalidate (overrides manifest)",
			},
			&cli.StringSliceFlag{
				Name:    "paths",
				Aliases: []string{"p"},
				Usage:   "Invalidation path (can be specified multiple times)",
			},
			&cli.BoolFlag{
				Name:  "skip-build",
				Usage: "Publish the existing build output without running the build command",
			},
			&cli.BoolFlag{
				Name:  "prune",
				Usage: "Delete remote objects that no longer exist locally",
				Value: true,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output the release report as JSON",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Compute and print the sync plan without uploading or invalidating",
			},
		},
		Action: func(c *cli.Context) error {
			return frontendAction(c, logger)
		},
	}
}

func frontendAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := c.Context

	cfg, err := loadManifest(c)
	if err != nil {
		return err
	}
	applyFrontendFlags(cfg, c)
	if err := cfg.ValidateFrontend(); err != nil {
		return err
	}

	paths := cfg.Frontend.Paths
	if v := c.StringSlice("paths"); len(v) > 0 {
		paths = v
	}
	prune := cfg.Frontend.PruneEnabled()
	if c.IsSet("prune") {
		prune = c.Bool("prune")
	}

	logger.Info().
		Str("project_dir", cfg.Frontend.ProjectDir).
		Str("bucket", cfg.Frontend.Bucket).
		Str("distribution_id", cfg.Frontend.DistributionID).
		Bool("dry_run", c.Bool("dry-run")).
		Msg("Starting frontend deploy")

	container, err := di.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}

	handler := &frontendHandler{
		cfg:      cfg,
		site:     di.MustGet[*services.SiteSyncService](container),
		cdn:      di.MustGet[*services.CDNService](container),
		recorder: di.MustGet[*releasedao.Recorder](container),
		out:      c.App.Writer,
	}

	return handler.run(ctx, frontendInput{
		Paths:     paths,
		Prune:     prune,
		SkipBuild: c.Bool("skip-build"),
		DryRun:    c.Bool("dry-run"),
		JSON:      c.Bool("json"),
	})
}

func applyFrontendFlags(cfg *config.Config, c *cli.Context) {
	if v := c.String("project-dir"); v != "" {
		cfg.Frontend.ProjectDir = v
	}
	if v := c.String("bucket"); v != "" {
		cfg.Frontend.Bucket = v
	}
	if v := c.String("distribution-id"); v != "" {
		cfg.Frontend.DistributionID = v
	}
}

type frontendHandler struct {
	cfg      *config.Config
	site     *services.SiteSyncService
	cdn      *services.CDNService
	recorder *releasedao.Recorder
	out      io.Writer
}

type frontendInput struct {
	Paths     []string
	Prune     bool
	SkipBuild bool
	DryRun    bool
	JSON      bool
}

func (h *frontendHandler) run(ctx context.Context, input frontendInput) error {
	begin := time.Now()
	frontend := h.cfg.Frontend
	buildDir := filepath.Join(frontend.ProjectDir, frontend.BuildDir)

	report := &models.FrontendReport{
		Bucket:         frontend.Bucket,
		DistributionID: frontend.DistributionID,
		Paths:          input.Paths,
		DryRun:         input.DryRun,
	}

	if input.DryRun {
		plan, err := h.site.BuildPlan(ctx, buildDir, frontend.Bucket, frontend.Prefix, input.Prune)
		if err != nil {
			return err
		}
		report.Uploaded = len(plan.Uploads)
		report.Deleted = len(plan.Deletes)
		report.Unchanged = plan.Unchanged
		if input.JSON {
			return printJSON(h.out, report)
		}
		fmt.Fprintf(h.out, "DRY RUN: Would upload %d objects, delete %d, leave %d unchanged\n",
			len(plan.Uploads), len(plan.Deletes), plan.Unchanged)
		for _, object := range plan.Uploads {
			fmt.Fprintf(h.out, "  + s3://%s/%s\n", frontend.Bucket, object.Key)
		}
		for _, key := range plan.Deletes {
			fmt.Fprintf(h.out, "  - s3://%s/%s\n", frontend.Bucket, key)
		}
		fmt.Fprintf(h.out, "DRY RUN: Would invalidate %s on distribution %s\n",
			strings.Join(input.Paths, " "), frontend.DistributionID)
		return nil
	}

	steps := make([]pipeline.Step, 0, 3)
	if !input.SkipBuild {
		steps = append(steps, pipeline.Step{
			Name: "build",
			Run: func(ctx context.Context) error {
				command := buildcmd.New(frontend.BuildCommand, frontend.ProjectDir)
				if err := command.Run(ctx); err != nil {
					return err
				}
				if !input.JSON {
					fmt.Fprintf(h.out, "✓ Build completed: %s\n", command.String())
				}
				return nil
			},
		})
	}
	steps = append(steps,
		pipeline.Step{
			Name: "publish",
			Run: func(ctx context.Context) error {
				plan, err := h.site.BuildPlan(ctx, buildDir, frontend.Bucket, frontend.Prefix, input.Prune)
				if err != nil {
					return err
				}
				summary, err := h.site.Apply(ctx, frontend.Bucket, plan)
				if err != nil {
					return err
				}
				report.Uploaded = summary.Uploaded
				report.Deleted = summary.Deleted
				report.Unchanged = summary.Unchanged
				if !input.JSON {
					fmt.Fprintf(h.out, "✓ Published %d objects to s3://%s (%d deleted, %d unchanged)\n",
						summary.Uploaded, frontend.Bucket, summary.Deleted, summary.Unchanged)
				}
				return nil
			},
		},
		pipeline.Step{
			Name: "invalidate",
			Run: func(ctx context.Context) error {
				invalidationID, err := h.cdn.Invalidate(ctx, frontend.DistributionID, input.Paths)
				if err != nil {
					return err
				}
				report.InvalidationID = invalidationID
				if !input.JSON {
					fmt.Fprintf(h.out, "✓ Invalidation %s submitted for %s\n", invalidationID, strings.Join(input.Paths, " "))
				}
				return nil
			},
		},
	)

	releaseID := h.recorder.Started(ctx, releasedao.CreateInput{
		App:            h.cfg.App,
		Pipeline:       models.PipelineFrontend,
		SK:             ksuid.New().String(),
		Bucket:         frontend.Bucket,
		DistributionID: frontend.DistributionID,
	})

	_, err := pipeline.New(models.PipelineFrontend, steps...).Run(ctx)
	h.recorder.Finished(ctx, releaseID, err, report.InvalidationID)
	if err != nil {
		return err
	}

	if input.JSON {
		return printJSON(h.out, report)
	}

	fmt.Fprintf(h.out, "\n✓ Frontend deploy completed in %s\n", time.Since(begin).Round(time.Millisecond))
	return nil
}
