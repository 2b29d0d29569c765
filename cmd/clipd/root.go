package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"clipd"
	"clipd/internal/config"
)

// commandContext carries the shared --config flag and lazily loaded
// configuration across subcommands.
type commandContext struct {
	configPath string
	cfg        *config.Config
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := c.configPath
	if path == "" {
		if envPath := os.Getenv("CLIPD_CONFIG"); envPath != "" {
			path = envPath
		} else {
			path = "config/clipd.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	c.cfg = cfg
	return cfg, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "clipd",
		Short:         "Turn long videos into short captioned clips",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&ctx.configPath, "config", "", "Path to config file (default: ./config/clipd.yaml)")

	root.AddCommand(newServeCommand(ctx))
	root.AddCommand(newJobsCommand(ctx))
	root.AddCommand(newVersionCommand())

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the clipd version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clipd v%s\n", clipd.Version)
		},
	}
}
