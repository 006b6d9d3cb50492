package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fr13n8/centaurus"
	"github.com/fr13n8/centaurus/config"
	"github.com/fr13n8/centaurus/engine"
	"github.com/fr13n8/centaurus/handle"
	"github.com/fr13n8/centaurus/protocol"
	"github.com/fr13n8/centaurus/relay"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"k8s.io/apimachinery/pkg/util/wait"
)

var (
	dialTimeout time.Duration
	dialRetries int
	uniStream   bool

	connectCmd = &cobra.Command{
		Use:   "connect <address>",
		Short: "Open a stream to a server and join it to stdin and stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd, "bind")
			if err != nil {
				log.Error().Err(err).Msg("failed to load config")
				return err
			}

			return connect(cmd.Context(), conf, args[0])
		},
	}
)

func init() {
	connectCmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file, flags set explicitly take precedence")
	connectCmd.Flags().StringVarP(&bindAddr, "bind", "b", "0.0.0.0:0", "local UDP address to bind")
	connectCmd.Flags().StringVar(&serverName, "server-name", "", "name to verify the server certificate against, the address host when empty")
	connectCmd.Flags().StringVar(&certFile, "cert-file", "", "extra trusted certificate (PEM or DER), e.g. a self-signed server certificate")
	connectCmd.Flags().DurationVar(&dialTimeout, "timeout", 5*time.Second, "handshake timeout per attempt")
	connectCmd.Flags().IntVar(&dialRetries, "retries", 5, "connection attempts before giving up")
	connectCmd.Flags().BoolVarP(&uniStream, "uni", "u", false, "open a unidirectional stream, nothing is read back")
}

func connect(ctx context.Context, conf *config.Runtime, addr string) error {
	rt := centaurus.Init(engine.Options{QUIC: conf.Options})
	defer shutdown(rt)

	cli, err := centaurus.OpenSocket(rt, centaurus.Client, &conf.Socket)
	if err != nil {
		log.Error().Err(err).Msg("failed to open client socket")
		return err
	}

	backoff := wait.Backoff{
		Duration: 500 * time.Millisecond,
		Factor:   2,
		Jitter:   0.1,
		Steps:    dialRetries,
		Cap:      10 * time.Second,
	}
	err = wait.ExponentialBackoffWithContext(ctx, backoff, func(context.Context) (bool, error) {
		err := cli.Connect(addr, dialTimeout)
		if err == nil {
			return true, nil
		}

		var hsErr *protocol.HandshakeError
		if errors.Is(err, protocol.ErrTimeout) || errors.As(err, &hsErr) {
			log.Warn().Err(err).Msgf("failed to connect to %s, retrying", addr)
			return false, nil
		}
		return false, err
	})
	if err != nil {
		log.Error().Err(err).Msgf("failed to connect to %s", addr)
		return fmt.Errorf("connect %s: %w", addr, err)
	}
	log.Info().Msgf("connected to %s", addr)

	dir := protocol.Bidirectional
	if uniStream {
		dir = protocol.Unidirectional
	}
	s, err := cli.OpenStream(dir)
	if err != nil {
		log.Error().Err(err).Msg("failed to open stream")
		return err
	}

	conn := handle.NewConn(s)
	if uniStream {
		n, err := relay.Copy(conn, os.Stdin)
		log.Debug().Err(err).Int64("bytes", n).Msg("input sent")
		if err := conn.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close stream")
		}
	} else if err := relay.Splice(ctx, conn, os.Stdin, os.Stdout, config.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("stream failed")
	}

	return cli.Close(protocol.ApplicationOK, "")
}
