package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"castsync/internal/sources"
)

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	sourcesCmd := &cobra.Command{
		Use:   "sources",
		Short: "Inspect source definitions",
	}
	sourcesCmd.AddCommand(newSourcesListCommand(ctx))
	sourcesCmd.AddCommand(newSourcesValidateCommand(ctx))
	return sourcesCmd
}

func loadSources(ctx *commandContext) (string, []sources.Source, []sources.FileError, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return "", nil, nil, err
	}
	dir := cfg.Paths.SourcesDir
	loaded, failures, err := sources.LoadDir(dir)
	if err != nil {
		return dir, nil, nil, fmt.Errorf("load sources: %w", err)
	}
	return dir, loaded, failures, nil
}

func newSourcesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, loaded, failures, err := loadSources(ctx)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				type sourceJSON struct {
					ID       string   `json:"id"`
					Name     string   `json:"name"`
					Enabled  bool     `json:"enabled"`
					Lister   string   `json:"lister"`
					Channels []string `json:"channel_urls"`
					Prefix   string   `json:"key_prefix"`
					Feed     string   `json:"feed_filename"`
					AI       bool     `json:"ai_enabled"`
					MaxItems int      `json:"max_items_per_day"`
				}
				list := make([]sourceJSON, 0, len(loaded))
				for _, src := range loaded {
					list = append(list, sourceJSON{
						ID:       src.ID,
						Name:     src.DisplayName(),
						Enabled:  src.IsEnabled(),
						Lister:   src.Lister,
						Channels: src.ChannelURLs,
						Prefix:   src.Prefix(),
						Feed:     src.FeedFilename,
						AI:       src.AI.Enabled,
						MaxItems: src.Sync.MaxItemsPerDay,
					})
				}
				return writeJSON(cmd, map[string]any{"sources_dir": dir, "sources": list, "invalid": len(failures)})
			}

			out := cmd.OutOrStdout()
			if len(loaded) == 0 {
				fmt.Fprintf(out, "No sources defined in %s\n", dir)
			} else {
				rows := make([][]string, 0, len(loaded))
				for _, src := range loaded {
					rows = append(rows, []string{
						src.ID,
						src.DisplayName(),
						yesNo(src.IsEnabled()),
						src.Lister,
						strconv.Itoa(len(src.ChannelURLs)),
						yesNo(src.AI.Enabled),
						src.Prefix() + src.FeedFilename,
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Name", "Enabled", "Lister", "Channels", "AI", "Feed Key"},
					rows,
					4,
				))
				fmt.Fprintln(out)
			}
			for _, failure := range failures {
				fmt.Fprintf(out, "Invalid: %s\n", failure.Error())
			}
			return nil
		},
	}
}

func newSourcesValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate every source definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, loaded, failures, err := loadSources(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, src := range loaded {
				fmt.Fprintf(out, "ok      %s (%s)\n", src.ID, src.Path)
			}
			for _, failure := range failures {
				fmt.Fprintf(out, "invalid %s\n", failure.Error())
			}
			if len(failures) > 0 {
				msgs := make([]string, 0, len(failures))
				for _, failure := range failures {
					msgs = append(msgs, failure.Path)
				}
				return errors.New("invalid source definitions: " + strings.Join(msgs, ", "))
			}
			fmt.Fprintf(out, "%d sources valid in %s\n", len(loaded), dir)
			return nil
		},
	}
}
