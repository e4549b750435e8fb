package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/pitchlab/stack-deployer/internal/config"
	"github.com/pitchlab/stack-deployer/internal/di"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// WhoamiCommand returns the whoami command for verifying AWS credentials
func WhoamiCommand(logger *zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "Verify AWS credentials and show the active identity",
		Description: `Resolves the AWS identity the deploy commands would run as. Useful for
checking credentials before a deploy. A deploy manifest is not required;
when one is present its region setting is honored.

Examples:
  # Show the active identity
  stack-deployer whoami

  # Machine-readable
  stack-deployer whoami --json`,
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output as JSON",
			},
		},
		Action: whoamiAction,
	}
}

func whoamiAction(c *cli.Context) error {
	ctx := c.Context

	cfg, err := loadManifest(c)
	if err != nil {
		// Identity checks should work without a manifest
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		cfg = &config.Config{}
	}

	container, err := di.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build dependencies: %w", err)
	}

	handler := &whoamiHandler{
		sts:    di.MustGet[*sts.Client](container),
		region: di.MustGet[aws.Config](container).Region,
		out:    c.App.Writer,
	}

	return handler.run(ctx, c.Bool("json"))
}

type whoamiHandler struct {
	sts    *sts.Client
	region string
	out    io.Writer
}

type callerIdentity struct {
	Account string `json:"account"`
	Arn     string `json:"arn"`
	UserID  string `json:"user_id"`
	Region  string `json:"region,omitempty"`
}

func (h *whoamiHandler) run(ctx context.Context, asJSON bool) error {
	identity, err := h.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("failed to get caller identity: %w", err)
	}

	doc := callerIdentity{
		Account: aws.ToString(identity.Account),
		Arn:     aws.ToString(identity.Arn),
		UserID:  aws.ToString(identity.UserId),
		Region:  h.region,
	}

	if asJSON {
		return printJSON(h.out, doc)
	}

	fmt.Fprintln(h.out, "✓ Credentials OK")
	fmt.Fprintln(h.out)
	fmt.Fprintf(h.out, "  Account:  %s\n", doc.Account)
	fmt.Fprintf(h.out, "  Arn:      %s\n", doc.Arn)
	fmt.Fprintf(h.out, "  UserId:   %s\n", doc.UserID)
	if doc.Region != "" {
		fmt.Fprintf(h.out, "  Region:   %s\n", doc.Region)
	}

	return nil
}
