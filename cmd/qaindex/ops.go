package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/flemzord/qaindex/internal/config"
	"github.com/flemzord/qaindex/internal/core"
	"github.com/flemzord/qaindex/internal/extract"
	"github.com/flemzord/qaindex/internal/mcpserver"
	"github.com/flemzord/qaindex/internal/qaindex"
	"github.com/flemzord/qaindex/pkg/app"
)

func extractCmd(g *globalFlags) *cobra.Command {
	var hours int
	var session, outDir string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the last hours of entries and write an analysis report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if hours < 1 {
				return &qaindex.ValidationError{Field: "hours", Reason: "must be >= 1"}
			}
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				x, err := inst.Store.ExtractWindow(ctx, qaindex.HourWindow(session, hours, time.Now()))
				if err != nil {
					return err
				}
				report := extract.Analyze(x)

				out := cmd.OutOrStdout()
				if !dryRun && len(x.Records) > 0 {
					dir := outDir
					if dir == "" {
						dir = reportDir(inst)
					}
					runDir, err := extract.Save(dir, x, report)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "Saved run to %s\n", runDir)
				}
				if g.jsonOut {
					return printJSON(out, report)
				}
				fmt.Fprint(out, extract.FormatReport(report))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 1, "Size of the window ending now")
	cmd.Flags().StringVarP(&session, "session", "s", "", "Restrict to one session")
	cmd.Flags().StringVarP(&outDir, "output-dir", "o", "", "Directory for run output (default: the scheduler's output dir)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the report without saving the run")
	return cmd
}

func doctorCmd(g *globalFlags) *cobra.Command {
	var reindex bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that the indices agree with the log, optionally rebuilding them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Using %s\n", app.Describe(inst.ConfigPath))
				if loc := inst.Store.Location(); loc != "" {
					fmt.Fprintf(out, "Snapshot: %s\n", loc)
				}

				err := inst.Store.Check(ctx)
				switch {
				case err == nil:
					fmt.Fprintln(out, "Indices: consistent")
				case reindex && errors.Is(err, qaindex.ErrInconsistent):
					fmt.Fprintf(out, "Indices: inconsistent (%v), rebuilding\n", err)
					if err := inst.Store.Reindex(ctx); err != nil {
						return err
					}
					if err := inst.Store.Check(ctx); err != nil {
						return err
					}
					fmt.Fprintln(out, "Indices: rebuilt")
				default:
					return err
				}

				stats, err := inst.Store.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Entries: %d in %d sessions, %d answers stored\n",
					stats.TotalQAPairs, stats.Sessions, stats.StoredAnswers)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reindex, "reindex", false, "Rebuild the indices when they disagree with the log")
	return cmd
}

func serveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the configured modules (gateway, scheduler) until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), g.params())
		},
	}
}

func mcpCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the index to an MCP client over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd, g, func(ctx context.Context, inst *app.Instance) error {
				srv := mcpserver.New(inst.Store, version, inst.Logger)
				return srv.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [path]",
		Short: "Validate configuration and load its modules",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := g.configPath
			if len(args) == 1 {
				path = args[0]
			}
			cfg, cfgPath, err := app.LoadConfig(path)
			if err != nil {
				return err
			}

			params := g.params()
			logger, closeLog := app.NewLogger(cfg.Log, g.verbose, cmd.ErrOrStderr())
			defer closeLog()
			dataDir := params.DataDir
			if dataDir == "" {
				dataDir = app.DefaultDataDir()
			}
			application, err := app.Build(cfg, logger, dataDir, cfgPath)
			if err != nil {
				return err
			}
			defer application.Stop()

			ids := config.Resolve(cfg)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d modules, %s)\n", len(ids), app.Describe(cfgPath))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	})
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "qaindex %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range core.GetModules() {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

// writeJSONFile atomically replaces path with v as indented JSON.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return renameio.WriteFile(path, append(data, '\n'), 0o600)
}
