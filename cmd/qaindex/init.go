package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/qaindex/internal/config"
	"github.com/flemzord/qaindex/internal/scoring"
)

// initAnswers are the choices collected by the init wizard.
type initAnswers struct {
	Backend      string // "file" or "sqlite"
	SnapshotPath string // empty keeps the backend default under the data dir
	Policy       string
	Gateway      bool
	GatewayBind  string
	GatewayToken string
	Extraction   bool
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Backend:     "file",
		Policy:      scoring.DefaultPolicy,
		GatewayBind: "127.0.0.1:8787",
	}
}

// renderConfig turns the answers into a qaindex.yaml document.
func renderConfig(a initAnswers) ([]byte, error) {
	if a.Backend != "file" && a.Backend != "sqlite" {
		return nil, fmt.Errorf("unknown snapshot backend %q", a.Backend)
	}

	snapshot := map[string]any{}
	if a.SnapshotPath != "" {
		snapshot["path"] = a.SnapshotPath
	}
	store := map[string]any{}
	if a.Policy != "" {
		store["policy"] = a.Policy
	}

	modules := map[string]any{
		"snapshot." + a.Backend: snapshot,
		"store.qaindex":         store,
	}
	if a.Gateway {
		if a.GatewayToken == "" {
			a.GatewayToken = uuid.NewString()
		}
		modules["gateway.http"] = map[string]any{
			"bind": a.GatewayBind,
			"auth": map[string]any{"bearer_token": a.GatewayToken},
		}
	}
	if a.Extraction {
		modules["cron.scheduler"] = map[string]any{
			"extraction": map[string]any{"schedule": "0 * * * *", "hours": 1},
		}
	}

	return yaml.Marshal(map[string]any{
		"version": "1",
		"log":     map[string]any{"level": "info"},
		"modules": modules,
	})
}

func runWizard(a *initAnswers) error {
	policies := make([]huh.Option[string], 0)
	for _, name := range scoring.Names() {
		policies = append(policies, huh.NewOption(name, name))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Snapshot backend").
				Options(
					huh.NewOption("JSON file", "file"),
					huh.NewOption("SQLite database", "sqlite"),
				).
				Value(&a.Backend),
			huh.NewInput().
				Title("Snapshot path").
				Description("Leave empty to store it in the data directory.").
				Value(&a.SnapshotPath),
			huh.NewSelect[string]().
				Title("Significance policy").
				Options(policies...).
				Value(&a.Policy),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the HTTP gateway?").
				Value(&a.Gateway),
			huh.NewConfirm().
				Title("Run hourly extraction?").
				Value(&a.Extraction),
		),
	)
	return form.Run()
}

func initCmd(g *globalFlags) *cobra.Command {
	var (
		useDefaults bool
		force       bool
		out         string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := out
			if path == "" {
				path = g.configPath
			}
			if path == "" {
				path = config.SearchPaths()[0]
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			answers := defaultAnswers()
			if !useDefaults {
				if err := runWizard(&answers); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						return nil
					}
					return err
				}
			}

			data, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := renameio.WriteFile(path, data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&useDefaults, "defaults", "y", false, "skip the wizard and use defaults")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path")
	return cmd
}
