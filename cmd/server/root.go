package main

import (
	"github.com/spf13/cobra"

	"github.com/codebuildervaibhav/yt-audio-converter/internal/config"
)

type commandContext struct {
	configPath string
}

func (c *commandContext) loadConfig() (*config.Config, error) {
	return config.Load(c.configPath)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "server",
		Short:         "YouTube to MP3 conversion server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), ctx)
		},
	}
	root.PersistentFlags().StringVarP(&ctx.configPath, "config", "c", config.DefaultPath, "Path to the YAML configuration file")

	root.AddCommand(newServeCommand(ctx))
	root.AddCommand(newCacheCommand(ctx))
	return root
}
