package main

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/fr13n8/centaurus/config"
	"github.com/kardianos/service"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serviceName       = "centaurus"
	serviceConfigPath string
	serviceLogFile    string
	serviceCmd        = &cobra.Command{
		Use:   "service",
		Short: "Service commands",
	}
)

func init() {
	serviceCmd.AddCommand(
		serviceStartCmd,
		serviceInstallCmd,
		serviceUninstallCmd,
		serviceRunCmd,
		serviceStopCmd,
		serviceRestartCmd,
		serviceStatusCmd,
	)

	serviceCmd.PersistentFlags().StringVarP(&serviceConfigPath, "config", "c", defaultConfigFile, "TOML config file the service serves with")
	serviceInstallCmd.Flags().StringVar(&serviceLogFile, "service-log-file", defaultLogFile, "log file path, if set \"console\" then will use console output")
}

func newSVCConfig() *service.Config {
	return &service.Config{
		Name:        serviceName,
		DisplayName: "Centaurus",
		Description: "QUIC echo endpoint serving sockets and streams from a TOML configuration",
		Option:      make(service.KeyValue),
	}
}

func newSVC(prg *program, conf *service.Config) (service.Service, error) {
	s, err := service.New(prg, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, nil
}

type program struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan error
}

func newProgram(ctx context.Context, cancel context.CancelFunc) *program {
	return &program{ctx: ctx, cancel: cancel, done: make(chan error, 1)}
}

func (p *program) Start(svc service.Service) error {
	log.Info().Msg("starting Centaurus service")

	conf, err := config.LoadFile(serviceConfigPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to load service config")
		return err
	}

	go func() {
		p.done <- serve(p.ctx, conf)
	}()

	return nil
}

func (p *program) Stop(srv service.Service) error {
	p.cancel()

	err := <-p.done
	if err != nil {
		log.Error().Err(err).Msg("service stopped with error")
		return err
	}
	log.Info().Msg("service stopped")
	return nil
}

var (
	serviceInstallCmd = &cobra.Command{
		Use:   "install",
		Short: "Install service",
		Run: func(cmd *cobra.Command, args []string) {
			log.Info().Msg("installing service")
			svcConfig := newSVCConfig()

			configFile, err := filepath.Abs(serviceConfigPath)
			if err != nil {
				log.Error().Err(err).Msg("failed to resolve config path")
				return
			}
			svcConfig.Arguments = []string{
				"service",
				"run",
				"--config",
				configFile,
			}

			if serviceLogFile != "console" {
				svcConfig.Arguments = append(svcConfig.Arguments, "--log-file", serviceLogFile)

				if err := createDirFile(serviceLogFile); err != nil {
					svcConfig.Option["LogOutput"] = true
					svcConfig.Option["LogDirectory"] = filepath.Dir(serviceLogFile)
				}
			}

			if runtime.GOOS == "linux" {
				// Respected only by systemd systems
				svcConfig.Dependencies = []string{"After=network.target syslog.target"}
			}
			if runtime.GOOS == "windows" {
				svcConfig.Option["OnFailure"] = "restart"
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			s, err := newSVC(newProgram(ctx, cancel), svcConfig)
			if err != nil {
				log.Error().Err(err).Msg("failed to create service")
				return
			}

			if err := s.Install(); err != nil {
				log.Error().Err(err).Msg("failed to install service")
				return
			}

			log.Info().Msg("service successfully installed")
		},
	}

	serviceUninstallCmd = &cobra.Command{
		Use:   "uninstall",
		Short: "Uninstall service",
		Run: func(cmd *cobra.Command, args []string) {
			log.Info().Msg("uninstalling service")

			ctx, cancel := context.WithCancel(cmd.Context())
			s, err := newSVC(newProgram(ctx, cancel), newSVCConfig())
			if err != nil {
				log.Error().Err(err).Msg("failed to create service")
				return
			}

			if err := s.Stop(); err != nil {
				log.Warn().Err(err).Msg("failed to stop service")
			}

			if err := s.Uninstall(); err != nil {
				log.Error().Err(err).Msg("failed to uninstall service")
				return
			}

			log.Info().Msg("service successfully uninstalled")
		},
	}
)
