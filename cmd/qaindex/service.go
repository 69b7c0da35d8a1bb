package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/qaindex/pkg/app"
)

// serviceActions are passed to service.Control; "run" runs in the
// foreground under the service manager.
var serviceActions = append([]string{"run", "status"}, service.ControlAction[:]...)

// program adapts app.Run to the service manager's Start/Stop calls.
type program struct {
	params app.Params

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.cancel = cancel
	p.done = make(chan error, 1)
	p.mu.Unlock()

	go func() { p.done <- app.Run(ctx, p.params) }()
	return nil
}

func (p *program) Stop(service.Service) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	return <-done
}

// serviceConfig describes the installed service. The config path is made
// absolute because service managers start in a different directory.
func serviceConfig(g *globalFlags) (*service.Config, error) {
	args := []string{"serve"}
	if g.configPath != "" {
		abs, err := filepath.Abs(g.configPath)
		if err != nil {
			return nil, err
		}
		args = append(args, "--config", abs)
	}
	if g.dataDir != "" {
		abs, err := filepath.Abs(g.dataDir)
		if err != nil {
			return nil, err
		}
		args = append(args, "--data-dir", abs)
	}
	return &service.Config{
		Name:        "qaindex",
		DisplayName: "qaindex",
		Description: "Indexed question and answer history for conversational agents",
		Arguments:   args,
		Option:      service.KeyValue{"UserService": true},
	}, nil
}

func serviceCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:       "service <install|uninstall|start|stop|restart|status|run>",
		Short:     "Manage qaindex serve as a user service",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: serviceActions,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := serviceConfig(g)
			if err != nil {
				return err
			}
			svc, err := service.New(&program{params: g.params()}, cfg)
			if err != nil {
				return fmt.Errorf("service: %w", err)
			}

			switch action := args[0]; action {
			case "run":
				return svc.Run()
			case "status":
				status, err := svc.Status()
				if errors.Is(err, service.ErrNotInstalled) {
					fmt.Fprintln(cmd.OutOrStdout(), "not installed")
					return nil
				}
				if err != nil {
					return fmt.Errorf("service: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), statusName(status))
				return nil
			default:
				if err := service.Control(svc, action); err != nil {
					return fmt.Errorf("service: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "service %s: ok\n", action)
				return nil
			}
		},
	}
}

func statusName(s service.Status) string {
	switch s {
	case service.StatusRunning:
		return "running"
	case service.StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
