package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pitchlab/stack-deployer/internal/config"
	"github.com/pitchlab/stack-deployer/internal/di"
	"github.com/pitchlab/stack-deployer/internal/errors"
	"github.com/pitchlab/stack-deployer/internal/models"
	"github.com/pitchlab/stack-deployer/internal/services"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// StatusCommand returns the status command for inspecting both halves of the stack
func StatusCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show environment and distribution health",
		Description: `Read-only view of what is currently deployed: the hosting environment's
status, health, and active version, its most recent events, and the CDN
distribution's rollout state. Only the halves configured in the manifest
are shown.

Examples:
  # Human-readable status
  stack-deployer status

  # More event history
  stack-deployer status --events 20

  # Machine-readable
  stack-deployer status --json`,
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:    "events",
				Aliases: []string{"n"},
				Usage:   "Number of recent environment events to show",
				Value:   5,
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	ctx := c.Context

	cfg, err := loadManifest(c)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	container, err := di.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}

	handler := &statusHandler{
		cfg:       cfg,
		beanstalk: di.MustGet[*services.BeanstalkService](container),
		cdn:       di.MustGet[*services.CDNService](container),
		out:       c.App.Writer,
	}

	return handler.run(ctx, c.Int("events"), c.Bool("json"))
}

type statusHandler struct {
	cfg       *config.Config
	beanstalk *services.BeanstalkService
	cdn       *services.CDNService
	out       io.Writer
}

func (h *statusHandler) run(ctx context.Context, events int, asJSON bool) error {
	doc := &models.StackStatus{}

	backend := h.cfg.Backend
	if backend.Application != "" && backend.Environment != "" {
		env, err := h.beanstalk.EnvironmentStatus(ctx, backend.Application, backend.Environment)
		if err != nil {
			return err
		}
		doc.Backend = env

		if events > 0 {
			recent, err := h.beanstalk.RecentEvents(ctx, backend.Environment, events)
			if err != nil {
				return err
			}
			doc.Events = recent
		}
	}

	if h.cfg.Frontend.DistributionID != "" {
		dist, err := h.cdn.DistributionStatus(ctx, h.cfg.Frontend.DistributionID)
		if err != nil {
			return err
		}
		doc.Frontend = dist
	}

	if doc.Backend == nil && doc.Frontend == nil {
		return fmt.Errorf("%w: manifest configures neither backend.environment nor frontend.distribution_id", errors.ErrInvalidConfig)
	}

	if asJSON {
		return printJSON(h.out, doc)
	}

	if doc.Backend != nil {
		fmt.Fprintln(h.out)
		fmt.Fprintf(h.out, "Backend environment: %s\n", doc.Backend.Environment)
		fmt.Fprintln(h.out, strings.Repeat("=", 60))
		fmt.Fprintf(h.out, "  Status:   %s\n", doc.Backend.Status)
		fmt.Fprintf(h.out, "  Health:   %s\n", doc.Backend.Health)
		fmt.Fprintf(h.out, "  Version:  %s\n", doc.Backend.VersionLabel)
		if doc.Backend.CNAME != "" {
			fmt.Fprintf(h.out, "  CNAME:    %s\n", doc.Backend.CNAME)
		}
		fmt.Fprintf(h.out, "  Updated:  %s\n", doc.Backend.LastUpdated.Format(time.RFC3339))

		if len(doc.Events) > 0 {
			fmt.Fprintln(h.out)
			fmt.Fprintln(h.out, "Recent events:")
			for _, event := range doc.Events {
				fmt.Fprintf(h.out, "  %s  %-5s  %s\n",
					event.Timestamp.Format("2006-01-02 15:04:05"), event.Severity, event.Message)
			}
		}
	}

	if doc.Frontend != nil {
		fmt.Fprintln(h.out)
		fmt.Fprintf(h.out, "Frontend distribution: %s\n", doc.Frontend.ID)
		fmt.Fprintln(h.out, strings.Repeat("=", 60))
		fmt.Fprintf(h.out, "  Domain:   %s\n", doc.Frontend.DomainName)
		fmt.Fprintf(h.out, "  Status:   %s\n", doc.Frontend.Status)
		fmt.Fprintf(h.out, "  Enabled:  %t\n", doc.Frontend.Enabled)
		fmt.Fprintf(h.out, "  Modified: %s\n", doc.Frontend.LastModified.Format(time.RFC3339))
	}

	return nil
}
