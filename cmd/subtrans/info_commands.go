package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"subtrans/internal/config"
	"subtrans/internal/language"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func newLanguagesCommand(ctx *commandContext) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List supported target languages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rows := make([][]string, 0, 16)
			if remote {
				cli, err := ctx.client()
				if err != nil {
					return err
				}
				infos, err := cli.Languages(cmd.Context())
				if err != nil {
					return err
				}
				for _, info := range infos {
					rows = append(rows, []string{info.Code, info.DisplayName})
				}
			} else {
				for _, info := range language.List() {
					rows = append(rows, []string{info.Code, info.DisplayName})
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Code", "Language"},
				rows,
				[]columnAlignment{alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&remote, "remote", false, "Query the daemon instead of the built-in catalogue")
	return cmd
}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a sample configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				path = defaultPath
			}
			if err := config.WriteSample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if ctx.path != "" {
				fmt.Fprintf(out, "# %s\n", ctx.path)
			}
			fmt.Fprintf(out, "staging_dir = %q\n", cfg.Paths.StagingDir)
			fmt.Fprintf(out, "output_dir = %q\n", cfg.Paths.OutputDir)
			fmt.Fprintf(out, "upload_dir = %q\n", cfg.Paths.UploadDir)
			fmt.Fprintf(out, "log_dir = %q\n", cfg.Paths.LogDir)
			fmt.Fprintf(out, "api_bind = %q\n", cfg.Paths.APIBind)
			fmt.Fprintf(out, "ffmpeg = %q\n", cfg.FFmpeg.Binary)
			fmt.Fprintf(out, "whisper = %q (model %s, device %s)\n",
				cfg.Whisper.Binary, cfg.Whisper.Model, cfg.Whisper.Device)
			fmt.Fprintf(out, "translator = %q\n", cfg.Translator.BaseURL)
			fmt.Fprintf(out, "max_concurrent_tasks = %d\n", cfg.Workflow.MaxConcurrentTasks)
			fmt.Fprintf(out, "language_workers = %d\n", cfg.Workflow.LanguageWorkers)
			return nil
		},
	})

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the subtrans version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "subtrans %s\n", version)
		},
	}
}
