package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"
	"github.com/nexconsult/goc-sync/internal/config"
	"github.com/nexconsult/goc-sync/internal/logger"
	"github.com/nexconsult/goc-sync/internal/models"
	"github.com/nexconsult/goc-sync/internal/services"
	"github.com/spf13/cobra"
)

// app is built once per invocation by the root command
type app struct {
	envFile   string
	logLevel  string
	container *services.Container
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "gocsync",
		Short:         "Synchronize the clinic portal with the local database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.container != nil {
				return a.container.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env", ".env", "environment file loaded before the process environment")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override LOG_LEVEL")

	root.AddCommand(
		a.syncCmd("register", models.RunRegistrations, "Register pending form responses on the portal"),
		a.syncCmd("calendar", models.RunCalendar, "Import the appointment calendar"),
		a.syncCmd("stock", models.RunStock, "Import the vaccine stock grid"),
		a.syncCmd("users", models.RunUsers, "Import the most recently registered patients"),
		a.runsCmd(),
		a.cleanupCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	// a missing file is fine, the process environment still applies
	_ = godotenv.Load(a.envFile)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	log := logger.New(cfg.Log)
	log.SetOutput(cmd.ErrOrStderr())

	a.container, err = services.NewContainer(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	return nil
}

func (a *app) syncCmd(use string, kind models.RunKind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			run, err := a.container.SyncService.Run(cmd.Context(), kind)
			if run != nil {
				if werr := writeJSON(cmd.OutOrStdout(), run); werr != nil {
					return werr
				}
			}
			return err
		},
	}
}

func (a *app) runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the most recent synchronization runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := a.container.SyncService.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				_, err := fmt.Fprintln(w, "no runs recorded")
				return err
			}
			for _, r := range runs {
				fmt.Fprintf(w, "%s  %-13s %-9s %-16s new=%d registered=%d duplicates=%d errors=%d created=%d updated=%d\n",
					r.StartedAt.Format("2006-01-02 15:04:05"), r.Kind, r.Status, r.Outcome(),
					r.TotalNew, r.Registered, r.Duplicates, r.Errors, r.Created, r.Updated)
				if r.ErrorMessage != "" {
					fmt.Fprintf(w, "    %s\n", strings.TrimSpace(r.ErrorMessage))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")
	return cmd
}

func (a *app) cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove registration logs past the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			removed, err := a.container.SyncService.CleanupLogs(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d registration logs removed\n", removed)
			return err
		},
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
