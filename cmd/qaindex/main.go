// Package main is the entry point for the qaindex CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flemzord/qaindex/internal/qaindex"
	"github.com/flemzord/qaindex/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes by error kind.
const (
	exitOther       = 1
	exitNotFound    = 2
	exitValidation  = 3
	exitPersistence = 4
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "qaindex:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch qaindex.KindOf(err) {
	case qaindex.KindNotFound:
		return exitNotFound
	case qaindex.KindValidation:
		return exitValidation
	case qaindex.KindPersistence:
		return exitPersistence
	default:
		return exitOther
	}
}

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	dataDir    string
	verbose    bool
	jsonOut    bool
}

func (g *globalFlags) params() app.Params {
	return app.Params{
		ConfigPath: g.configPath,
		DataDir:    g.dataDir,
		Verbose:    g.verbose,
	}
}

func rootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "qaindex",
		Short:         "Indexed history of questions and answers for conversational agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to configuration file")
	root.PersistentFlags().StringVar(&g.dataDir, "data-dir", "", "Data directory (default $XDG_DATA_HOME/qaindex)")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log at debug level to stderr")
	root.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "Print results as JSON")

	root.AddCommand(
		// Retrieval.
		topicsCmd(g), topicCmd(g), recentCmd(g), hashCmd(g), sessionCmd(g),
		sessionsCmd(g), statsCmd(g), queryCmd(g), contextCmd(g),
		// Mutations.
		askCmd(g), answerCmd(g), logCmd(g), tagsCmd(g), significanceCmd(g), archiveCmd(g),
		// Operations.
		extractCmd(g), doctorCmd(g), initCmd(g), serveCmd(g), serviceCmd(g), mcpCmd(g),
		configCmd(g), versionCmd(),
	)
	return root
}

// withStore opens the configured modules for a one-shot command.
func withStore(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, inst *app.Instance) error) error {
	inst, err := app.Open(g.params())
	if err != nil {
		return err
	}
	defer inst.Close()
	return fn(cmd.Context(), inst)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
