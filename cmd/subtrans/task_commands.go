package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"subtrans/internal/api"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var languagesFlag []string
	var formatFlag string

	cmd := &cobra.Command{
		Use:   "submit <video-file>",
		Short: "Upload a video and queue subtitle generation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := ctx.client()
			if err != nil {
				return err
			}
			videoPath, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			item, err := cli.Submit(cmd.Context(), videoPath, splitLanguages(languagesFlag), formatFlag)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s queued (%s, %s)\n",
				item.ID, strings.Join(item.TargetLanguages, ", "), item.SubtitleFormat)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&languagesFlag, "language", "l", nil, "Target language code (repeatable or comma separated)")
	cmd.Flags().StringVarP(&formatFlag, "format", "f", "", "Subtitle format: srt or vtt (default srt)")
	_ = cmd.MarkFlagRequired("language")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "status [task-id]",
		Short: "Show one task or the whole queue",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := ctx.client()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				item, err := cli.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printTaskDetail(cmd, item)
				return nil
			}

			items, err := cli.List(cmd.Context(), statusFilter)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tasks.")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{
					item.ID,
					filepath.Base(item.VideoPath),
					item.Status,
					fmt.Sprintf("%3.0f%%", item.Progress.Percent*100),
					strings.Join(item.TargetLanguages, ","),
					item.Progress.Message,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Video", "Status", "Progress", "Languages", "Message"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "filter", "", "Comma separated status filter (e.g. queued,failed)")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Request cancellation of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := ctx.client()
			if err != nil {
				return err
			}
			item, err := cli.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s is now %s\n", item.ID, item.Status)
			return nil
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <task-id>",
		Short: "Delete a finished task and its subtitle files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := ctx.client()
			if err != nil {
				return err
			}
			if err := cli.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s removed\n", args[0])
			return nil
		},
	}
}

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "fetch <task-id> [language...]",
		Short: "Download rendered subtitle files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := ctx.client()
			if err != nil {
				return err
			}

			id := args[0]
			langs := args[1:]
			if len(langs) == 0 {
				item, err := cli.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				for lang := range item.Result {
					langs = append(langs, lang)
				}
				sort.Strings(langs)
				if len(langs) == 0 {
					return fmt.Errorf("task %s has no subtitle files yet", id)
				}
			}

			for _, lang := range langs {
				path, err := cli.Download(cmd.Context(), id, lang, outputDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", ".", "Directory to write subtitle files into")
	return cmd
}

func printTaskDetail(cmd *cobra.Command, item api.TaskItem) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Task:      %s\n", item.ID)
	fmt.Fprintf(out, "Video:     %s\n", item.VideoPath)
	fmt.Fprintf(out, "Status:    %s (%.0f%%)\n", item.Status, item.Progress.Percent*100)
	fmt.Fprintf(out, "Stage:     %s\n", item.Progress.Stage)
	if item.Progress.Message != "" {
		fmt.Fprintf(out, "Message:   %s\n", item.Progress.Message)
	}
	fmt.Fprintf(out, "Languages: %s (%s)\n", strings.Join(item.TargetLanguages, ", "), item.SubtitleFormat)
	if item.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:     %s\n", item.ErrorMessage)
	}
	if len(item.Result) > 0 {
		langs := make([]string, 0, len(item.Result))
		for lang := range item.Result {
			langs = append(langs, lang)
		}
		sort.Strings(langs)
		fmt.Fprintln(out, "Subtitles:")
		for _, lang := range langs {
			fmt.Fprintf(out, "  %-6s %s\n", lang, item.Result[lang])
		}
	}
	if len(item.LanguageErrors) > 0 {
		langs := make([]string, 0, len(item.LanguageErrors))
		for lang := range item.LanguageErrors {
			langs = append(langs, lang)
		}
		sort.Strings(langs)
		fmt.Fprintln(out, "Language errors:")
		for _, lang := range langs {
			fmt.Fprintf(out, "  %-6s %s\n", lang, item.LanguageErrors[lang])
		}
	}
}

func splitLanguages(values []string) []string {
	var out []string
	for _, value := range values {
		for _, code := range strings.Split(value, ",") {
			if code = strings.TrimSpace(code); code != "" {
				out = append(out, code)
			}
		}
	}
	return out
}
