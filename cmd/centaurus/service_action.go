package main

import (
	"context"

	"github.com/kardianos/service"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serviceStartCmd   = serviceAction("start", "Start service", "service started", service.Service.Start)
	serviceStopCmd    = serviceAction("stop", "Stop service", "service stopped", service.Service.Stop)
	serviceRestartCmd = serviceAction("restart", "Restart service", "service restarted", service.Service.Restart)

	// run blocks until the service manager or a signal stops it
	serviceRunCmd = serviceAction("run", "Run service in foreground mode", "service exited", service.Service.Run)

	serviceStatusCmd = serviceAction("status", "Service status", "", func(s service.Service) error {
		status, err := s.Status()
		if err != nil {
			return err
		}

		switch status {
		case service.StatusRunning:
			log.Info().Msg("service is running")
		case service.StatusStopped:
			log.Info().Msg("service is stopped")
		default:
			log.Error().Msg("service is in unknown state")
		}
		return nil
	})
)

// serviceAction builds a subcommand applying action to the installed
// service.
func serviceAction(use, short, done string, action func(service.Service) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			s, err := newSVC(newProgram(ctx, cancel), newSVCConfig())
			if err != nil {
				log.Error().Err(err).Msg("failed to create service")
				return err
			}

			if err := action(s); err != nil {
				log.Error().Err(err).Msgf("failed to %s service", use)
				return err
			}

			if done != "" {
				log.Info().Msg(done)
			}
			return nil
		},
	}
}
