package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"freeslots/internal/availability"
	"freeslots/internal/config"
	"freeslots/internal/ics"
	appLog "freeslots/internal/log"
	"freeslots/internal/present"
	"freeslots/internal/refresh"
	"freeslots/internal/web"
)

const version = "0.1.0"

var configPath string

func main() {
	err := newRootCmd().Execute()
	appLog.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "freeslots",
		Short:         "Find common free meeting slots across calendars",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/freeslots/config.yaml", "Path to config file")

	root.AddCommand(newServeCmd(), newFreeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the periodic feed refresh",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, svc, err := setup()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			sched, err := refresh.New(cfg.Refresh, svc, svc.Location(), time.Minute)
			if err != nil {
				appLog.Error("failed to set up refresh", err, "refresh", cfg.Refresh)
				return err
			}
			sched.Start(ctx)
			go sched.Run()
			appLog.Info("refresh scheduled", "spec", cfg.Refresh, "next", sched.Next().Format(time.RFC3339))

			if err := web.StartServer(ctx, cfg, svc); err != nil {
				appLog.Error("http server stopped", err)
				return err
			}
			appLog.Info("freeslots exiting")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func newFreeCmd() *cobra.Command {
	var (
		date   string
		length int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "free",
		Short: "Print free slots for the configured people on one day",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, svc, err := setup()
			if err != nil {
				return err
			}

			day := time.Now().In(svc.Location())
			if date != "" {
				if day, err = time.ParseInLocation(time.DateOnly, date, svc.Location()); err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
			}
			if !cmd.Flags().Changed("length") {
				length = cfg.MeetingMinutes
			}

			res, err := svc.Free(cmd.Context(), day, length)
			if err != nil {
				appLog.Error("free slots failed", err, "date", date, "length", length)
				return err
			}
			return printResult(cmd.OutOrStdout(), res, asJSON)
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Day to search (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&length, "length", 0, "Minimum meeting length in minutes (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of text")
	return cmd
}

// setup loads the config, applies the log level and wires the service.
func setup() (*config.Config, *availability.Service, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", configPath)
		return nil, nil, err
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"meeting_minutes", cfg.MeetingMinutes,
		"work_start", cfg.WorkStart,
		"work_end", cfg.WorkEnd,
		"refresh", cfg.Refresh,
		"people", len(cfg.People),
	)

	svc, err := availability.New(cfg, ics.NewFetcher(cfg.CacheDir, 0))
	if err != nil {
		appLog.Error("failed to initialize availability", err)
		return nil, nil, err
	}
	return cfg, svc, nil
}

func printResult(w io.Writer, res availability.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(present.Slots(res.Free, res.Date))
	}

	fmt.Fprintf(w, "%s, meetings of %d min or longer:\n", res.Date.Format("Mon 2006-01-02"), res.MeetingMinutes)
	if len(res.Free) == 0 {
		fmt.Fprintln(w, "  no free slot")
	}
	for _, iv := range res.Free {
		fmt.Fprintf(w, "  %s (%d min)\n", present.Format(iv, res.Date), iv.Len())
	}
	if res.FeedErrors > 0 {
		fmt.Fprintf(w, "warning: %d calendar feed(s) could not be read\n", res.FeedErrors)
	}
	return nil
}
