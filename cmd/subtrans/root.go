package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"subtrans/internal/client"
	"subtrans/internal/config"
)

// commandContext carries lazily resolved configuration and the daemon client
// across subcommands.
type commandContext struct {
	addressFlag *string
	configFlag  *string

	once sync.Once
	cfg  *config.Config
	path string
	err  error
}

func newCommandContext(addressFlag, configFlag *string) *commandContext {
	return &commandContext{addressFlag: addressFlag, configFlag: configFlag}
}

// ensureConfig loads configuration once; missing files fall back to
// defaults.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.once.Do(func() {
		c.cfg, c.path, _, c.err = config.Load(strings.TrimSpace(*c.configFlag))
	})
	return c.cfg, c.err
}

// client builds a daemon API client from the address flag or configuration.
func (c *commandContext) client() (*client.Client, error) {
	if addr := strings.TrimSpace(*c.addressFlag); addr != "" {
		return client.New(addr), nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	addr := strings.TrimSpace(cfg.Paths.APIBind)
	if addr == "" {
		return nil, fmt.Errorf("no daemon address configured; pass --address or set api_bind")
	}
	return client.New(addr), nil
}

func newRootCommand() *cobra.Command {
	var addressFlag string
	var configFlag string

	ctx := newCommandContext(&addressFlag, &configFlag)

	rootCmd := &cobra.Command{
		Use:           "subtrans",
		Short:         "Generate translated subtitles from videos",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&addressFlag, "address", "", "Daemon API address (host:port)")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newSubmitCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newCancelCommand(ctx))
	rootCmd.AddCommand(newRemoveCommand(ctx))
	rootCmd.AddCommand(newFetchCommand(ctx))
	rootCmd.AddCommand(newLanguagesCommand(ctx))
	rootCmd.AddCommand(newHealthCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}
