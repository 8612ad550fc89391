package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"synwatch/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration synwatch would run with after merging
defaults, the config file, SYNWATCH_* environment variables and flags.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfig(cfg, cmd.OutOrStdout())
	},
}

func runConfig(c *config.Config, w io.Writer) error {
	data, err := c.YAML()
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	_, err = w.Write(data)
	return err
}
