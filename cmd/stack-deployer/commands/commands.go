// Package commands implements the stack-deployer CLI commands.
package commands

import (
	"encoding/json"
	"io"

	"github.com/pitchlab/stack-deployer/internal/config"
	"github.com/urfave/cli/v2"
)

// configFlag is the deploy manifest flag shared by every command.
func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the deploy manifest",
		Value:   config.DefaultPath,
		EnvVars: []string{"STACK_DEPLOYER_CONFIG"},
	}
}

// loadManifest reads the deploy manifest named by the --config flag.
func loadManifest(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String("config"))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
