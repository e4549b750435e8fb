package main

import (
	"context"
	"os"

	"github.com/pitchlab/stack-deployer/cmd/stack-deployer/commands"
	"github.com/pitchlab/stack-deployer/internal/di"
	"github.com/urfave/cli/v2"
)

func main() {
	logger := di.ProvideLogger()
	ctx := logger.WithContext(context.Background())

	app := &cli.App{
		Name:  "stack-deployer",
		Usage: "Deploy a two-tier web stack to AWS",
		Description: `Deploys both halves of a web application stack from a YAML deploy manifest.

This tool provides commands for:
  - Packaging a backend and releasing it as a new application version
  - Building a frontend and mirroring it to a site bucket behind a CDN
  - Inspecting environment, distribution, and release-history state`,
		Commands: []*cli.Command{
			commands.BackendCommand(&logger),
			commands.FrontendCommand(&logger),
			commands.StatusCommand(&logger),
			commands.ReleasesCommand(&logger),
			commands.WhoamiCommand(&logger),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		logger.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
