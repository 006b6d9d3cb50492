package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/fr13n8/centaurus/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	listenAddr  string
	bindAddr    string
	serverName  string
	certFile    string
	keyFile     string
	metricsAddr string
	forwardAddr string
	logFile     string
	verbose     bool
)

var (
	defaultLogFile    string
	defaultConfigFile string
	dirPermMode       = os.FileMode(0744) // rwxr--r--
	filePermMode      = os.FileMode(0644) // rw-r--r--
)

func init() {
	defaultLogFileDir := "/var/log/centaurus/"
	switch runtime.GOOS {
	case "windows":
		defaultLogFileDir = os.Getenv("PROGRAMDATA") + "\\Centaurus\\"
		config.CentaurusPath = defaultLogFileDir
	}

	defaultLogFile = defaultLogFileDir + "centaurus.log"
	defaultConfigFile = filepath.Join(config.CentaurusPath, "centaurus.toml")
}

// loadConfig reads the file given with --config, if any, and applies the
// socket flags the user set explicitly on top of it.
func loadConfig(cmd *cobra.Command, addrFlag string) (*config.Runtime, error) {
	conf := &config.Runtime{}
	if configPath != "" {
		c, err := config.LoadFile(configPath)
		if err != nil {
			return nil, err
		}
		conf = c
	}

	flags := cmd.Flags()
	override := func(name string, dst *string, val string) {
		if flags.Changed(name) || *dst == "" {
			*dst = val
		}
	}
	addr := listenAddr
	if addrFlag == "bind" {
		addr = bindAddr
	}
	override(addrFlag, &conf.Socket.Addr, addr)
	override("server-name", &conf.Socket.Name, serverName)
	override("cert-file", &conf.Socket.CertFile, certFile)
	if flags.Lookup("key-file") != nil {
		override("key-file", &conf.Socket.KeyFile, keyFile)
	}
	if flags.Lookup("metrics-addr") != nil {
		override("metrics-addr", &conf.MetricsAddr, metricsAddr)
		override("forward", &conf.Forward, forwardAddr)
	}
	conf.Options.ApplyDefaults()

	return conf, nil
}

func createFileWriter(fullPath string) (io.Writer, error) {
	_, err := os.Stat(fullPath)
	if err != nil {
		if err := createDirFile(fullPath); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}

		return os.OpenFile(fullPath, os.O_CREATE|os.O_WRONLY, filePermMode)
	}

	return os.OpenFile(fullPath, os.O_APPEND|os.O_WRONLY, filePermMode)
}

func createDirFile(fullPath string) error {
	dir := filepath.Dir(fullPath)
	_, err := os.Stat(dir)
	if err != nil {
		err = os.MkdirAll(dir, dirPermMode)
		if err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	return nil
}

func initLogger(logFile string, verbose bool) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	if logFile != "console" {
		logFileWriter, err := createFileWriter(logFile)
		if err != nil {
			return fmt.Errorf("failed to create log file writer: %w", err)
		}

		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        logFileWriter,
			TimeFormat: time.DateTime,
			NoColor:    true,
		})
	}

	return nil
}
