package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/pitchlab/stack-deployer/internal/bundle"
	"github.com/pitchlab/stack-deployer/internal/config"
	"github.com/pitchlab/stack-deployer/internal/dao/releasedao"
	"github.com/pitchlab/stack-deployer/internal/di"
	"github.com/pitchlab/stack-deployer/internal/models"
	"github.com/pitchlab/stack-deployer/internal/pipeline"
	"github.com/pitchlab/stack-deployer/internal/services"
	"github.com/pitchlab/stack-deployer/internal/utils"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"
)

// BackendCommand returns the backend command for releasing the API half of the stack
func BackendCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "backend",
		Usage: "Package the backend and release it as a new application version",
		Description: `Deploys the backend in three fixed stages:

  1. package  - zip the source directory
  2. upload   - push the archive to S3 and register it as an application version
  3. activate - point the environment at the new version

A failing stage stops the run; earlier stages are not rolled back. The
hosting service applies the new version asynchronously - use
'stack-deployer status' to watch the rollout.

Examples:
  # Deploy using deploy.yml in the current directory
  stack-deployer backend

  # Deploy with an explicit version label
  stack-deployer backend --label v2024.06.01

  # Package and print the release plan without touching AWS
  stack-deployer backend --dry-run`,
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "label",
				Aliases: []string{"l"},
				Usage:   "Version label (default: generated unique id)",
				EnvVars: []string{"DEPLOY_LABEL"},
			},
			&cli.StringFlag{
				Name:  "description",
				Usage: "Version description",
			},
			&cli.StringFlag{
				Name:  "source-dir",
				Usage: "Directory to package (overrides manifest)",
			},
			&cli.StringFlag{
				Name:    "application",
				Aliases: []string{"a"},
				Usage:   "Application name (overrides manifest)",
			},
			&cli.StringFlag{
				Name:    "environment",
				Aliases: []string{"e"},
				Usage:   "Environment name (overrides manifest)",
			},
			&cli.StringFlag{
				Name:  "bucket",
				Usage: "Artifact bucket (overrides manifest)",
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output the release report as JSON",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Package locally and show what would be released without calling AWS",
			},
		},
		Action: func(c *cli.Context) error {
			return backendAction(c, logger)
		},
	}
}

func backendAction(c *cli.Context, logger *zerolog.Logger) error {
	ctx := c.Context

	cfg, err := loadManifest(c)
	if err != nil {
		return err
	}
	applyBackendFlags(cfg, c)
	if err := cfg.ValidateBackend(); err != nil {
		return err
	}

	label := c.String("label")
	if label == "" {
		label = ksuid.New().String()
	}

	logger.Info().
		Str("application", cfg.Backend.Application).
		Str("environment", cfg.Backend.Environment).
		Str("label", label).
		Bool("dry_run", c.Bool("dry-run")).
		Msg("Starting backend deploy")

	container, err := di.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}

	handler := &backendHandler{
		cfg:       cfg,
		beanstalk: di.MustGet[*services.BeanstalkService](container),
		recorder:  di.MustGet[*releasedao.Recorder](container),
		out:       c.App.Writer,
	}

	return handler.run(ctx, backendInput{
		Label:       label,
		Key:         path.Join(cfg.Backend.KeyPrefix, label+".zip"),
		Description: c.String("description"),
		DryRun:      c.Bool("dry-run"),
		JSON:        c.Bool("json"),
	})
}

func applyBackendFlags(cfg *config.Config, c *cli.Context) {
	if v := c.String("application"); v != "" {
		cfg.Backend.Application = v
	}
	if v := c.String("environment"); v != "" {
		cfg.Backend.Environment = v
	}
	if v := c.String("source-dir"); v != "" {
		cfg.Backend.SourceDir = v
	}
	if v := c.String("bucket"); v != "" {
		cfg.Backend.Bucket = v
	}
}

type backendHandler struct {
	cfg       *config.Config
	beanstalk *services.BeanstalkService
	recorder  *releasedao.Recorder
	out       io.Writer
}

type backendInput struct {
	Label       string
	Key         string
	Description string
	DryRun      bool
	JSON        bool
}

func (h *backendHandler) run(ctx context.Context, input backendInput) error {
	begin := time.Now()
	backend := h.cfg.Backend

	report := &models.BackendReport{
		Application:  backend.Application,
		Environment:  backend.Environment,
		VersionLabel: input.Label,
		Bucket:       backend.Bucket,
		Key:          input.Key,
		DryRun:       input.DryRun,
	}

	archive, err := os.CreateTemp("", "stack-deployer-*.zip")
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	defer func() {
		archive.Close()
		os.Remove(archive.Name())
	}()

	pack := func(ctx context.Context) error {
		manifest, err := bundle.Create(ctx, archive, bundle.Options{
			SourceDir: backend.SourceDir,
			Exclude:   backend.Exclude,
		})
		if err != nil {
			return err
		}
		report.Files = manifest.Files
		report.Bytes = manifest.Bytes
		if !input.JSON {
			fmt.Fprintf(h.out, "✓ Packaged %d files (%d bytes) from %s\n", manifest.Files, manifest.Bytes, backend.SourceDir)
		}
		return nil
	}

	if input.DryRun {
		if err := pack(ctx); err != nil {
			return err
		}
		if input.JSON {
			return printJSON(h.out, report)
		}
		fmt.Fprintf(h.out, "DRY RUN: Would upload s3://%s/%s\n", backend.Bucket, input.Key)
		fmt.Fprintf(h.out, "DRY RUN: Would register application version %s for %s\n", input.Label, backend.Application)
		fmt.Fprintf(h.out, "DRY RUN: Would point environment %s at %s\n", backend.Environment, input.Label)
		return nil
	}

	steps := []pipeline.Step{
		{Name: "package", Run: pack},
		{
			Name: "upload",
			Run: func(ctx context.Context) error {
				if _, err := archive.Seek(0, io.SeekStart); err != nil {
					return fmt.Errorf("failed to rewind archive: %w", err)
				}
				if err := h.beanstalk.UploadBundle(ctx, backend.Bucket, input.Key, archive); err != nil {
					return err
				}
				if err := h.beanstalk.RegisterVersion(ctx, services.RegisterVersionInput{
					Application: backend.Application,
					Label:       input.Label,
					Description: input.Description,
					Bucket:      backend.Bucket,
					Key:         input.Key,
					Tags:        utils.MergeTags(map[string]string{"ManagedBy": "stack-deployer"}, backend.Tags),
				}); err != nil {
					return err
				}
				if !input.JSON {
					fmt.Fprintf(h.out, "✓ Registered version %s from s3://%s/%s\n", input.Label, backend.Bucket, input.Key)
				}
				return nil
			},
		},
		{
			Name: "activate",
			Run: func(ctx context.Context) error {
				if err := h.beanstalk.Activate(ctx, backend.Application, backend.Environment, input.Label); err != nil {
					return err
				}
				if !input.JSON {
					fmt.Fprintf(h.out, "✓ Environment %s is rolling out %s\n", backend.Environment, input.Label)
				}
				return nil
			},
		},
	}

	releaseID := h.recorder.Started(ctx, releasedao.CreateInput{
		App:      h.cfg.App,
		Pipeline: models.PipelineBackend,
		SK:       ksuid.New().String(),
		Version:  input.Label,
		Bucket:   backend.Bucket,
		Key:      input.Key,
	})

	_, err = pipeline.New(models.PipelineBackend, steps...).Run(ctx)
	h.recorder.Finished(ctx, releaseID, err, "")
	if err != nil {
		return err
	}

	if input.JSON {
		return printJSON(h.out, report)
	}

	fmt.Fprintf(h.out, "\n✓ Backend deploy completed in %s\n", time.Since(begin).Round(time.Millisecond))
	return nil
}
