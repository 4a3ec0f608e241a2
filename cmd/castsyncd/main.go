// Command castsyncd runs the castsync trigger server and scheduler as a
// standalone process, for service managers that prefer a dedicated binary
// over "castsync serve".
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"castsync/internal/config"
	"castsync/internal/daemonrun"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	opts, configPath, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return daemonrun.Run(ctx, cfg, opts)
}

func parseFlags(args []string) (daemonrun.Options, string, error) {
	var (
		opts       daemonrun.Options
		configPath string
	)
	cmd := &cobra.Command{Use: "castsyncd", SilenceUsage: true, SilenceErrors: true}
	fs := cmd.Flags()
	fs.StringVarP(&configPath, "config", "c", "", "Configuration file path")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Override logging.level")
	fs.BoolVar(&opts.Development, "dev", false, "Include source locations in log output")
	if err := fs.Parse(args); err != nil {
		return daemonrun.Options{}, "", err
	}
	if extra := fs.Args(); len(extra) > 0 {
		return daemonrun.Options{}, "", fmt.Errorf("unexpected arguments: %v", extra)
	}
	return opts, configPath, nil
}
