package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fr13n8/centaurus"
	"github.com/fr13n8/centaurus/config"
	"github.com/fr13n8/centaurus/engine"
	"github.com/fr13n8/centaurus/handle"
	"github.com/fr13n8/centaurus/protocol"
	"github.com/fr13n8/centaurus/relay"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	re          = lipgloss.NewRenderer(os.Stdout)
	HeaderStyle = re.NewStyle().Bold(true).Align(lipgloss.Center)
	CellStyle   = re.NewStyle().Padding(0, 1)
	RowStyle    = CellStyle
	BorderStyle = lipgloss.NewStyle()
)

var (
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Accept connections and echo every stream the peers open",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig(cmd, "listen")
			if err != nil {
				log.Error().Err(err).Msg("failed to load config")
				return err
			}

			return serve(cmd.Context(), conf)
		},
	}
)

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file, flags set explicitly take precedence")
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "0.0.0.0:4433", "UDP address to listen on")
	serveCmd.Flags().StringVar(&serverName, "server-name", "", "name the certificate is presented for")
	serveCmd.Flags().StringVar(&certFile, "cert-file", filepath.Join(config.CentaurusPath, "localhost_cert.pem"), "certificate chain file (PEM or DER)")
	serveCmd.Flags().StringVar(&keyFile, "key-file", filepath.Join(config.CentaurusPath, "localhost_key.pem"), "private key file (PEM or DER)")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	serveCmd.Flags().StringVar(&forwardAddr, "forward", "", "pipe bidirectional peer streams to this TCP address instead of echoing them")
}

// serve runs until ctx is done. Bidirectional peer streams are echoed back
// or forwarded, unidirectional ones are drained.
func serve(ctx context.Context, conf *config.Runtime) error {
	peers := make(engine.ChanNotifier, 64)
	rt := centaurus.Init(engine.Options{
		QUIC:     conf.Options,
		Notifier: peers,
	})

	srv, err := centaurus.OpenSocket(rt, centaurus.Server, &conf.Socket)
	if err != nil {
		log.Error().Err(err).Msg("failed to open server socket")
		return errors.Join(err, shutdown(rt))
	}
	log.Info().Msgf("listening on %s", srv.LocalAddr())

	g, ctx := errgroup.WithContext(ctx)

	if conf.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, conf.MetricsAddr)
		})
	}

	g.Go(func() error {
		for {
			conn, err := srv.Accept(0)
			if errors.Is(err, protocol.ErrClosed) {
				return nil
			}
			if err != nil {
				log.Warn().Err(err).Msg("failed to accept connection")
				continue
			}
			log.Info().Str("socket", conn.ID()).Msg("peer connected")
		}
	})

	g.Go(func() error {
		for {
			select {
			case s := <-peers:
				if conn, ok := rt.Socket(s.SocketID()); ok {
					log.Debug().Str("socket", conn.ID()).Str("stream", s.ID()).Str("direction", s.Direction().String()).Msgf("peer stream on %s", conn.LocalAddr())
				}
				go handlePeer(s, conf.Forward)
			case <-ctx.Done():
				return nil
			}
		}
	})

	<-ctx.Done()
	fmt.Println(socketTable(rt))

	err = shutdown(rt)
	return errors.Join(err, g.Wait())
}

// forwardRefused closes a stream whose upstream could not be reached.
const forwardRefused = 0x1

func handlePeer(s *handle.Stream, forward string) {
	conn := handle.NewConn(s)
	switch {
	case s.Direction() == protocol.Unidirectional:
		n, err := relay.Copy(io.Discard, conn)
		log.Debug().Err(err).Str("stream", s.ID()).Int64("bytes", n).Msg("drained stream")
		conn.Close()

	case forward != "":
		upstream, err := net.DialTimeout("tcp", forward, config.ShutdownTimeout)
		if err != nil {
			if relay.IsHostResponded(err) {
				log.Warn().Err(err).Str("stream", s.ID()).Msgf("upstream %s refused", forward)
			} else {
				log.Error().Err(err).Str("stream", s.ID()).Msgf("failed to reach upstream %s", forward)
			}
			s.Close(forwardRefused, "upstream unavailable")
			return
		}
		if err := relay.Pipe(conn, upstream); err != nil {
			log.Warn().Err(err).Str("stream", s.ID()).Msg("forward failed")
		}

	default:
		if err := relay.Echo(conn); err != nil {
			log.Warn().Err(err).Str("stream", s.ID()).Msg("echo failed")
		}
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	log.Info().Msgf("serving metrics on %s", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

func shutdown(rt *centaurus.Runtime) error {
	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	if err := rt.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("runtime shutdown")
		return err
	}
	log.Info().Msg("runtime stopped")
	return nil
}

func socketTable(rt *centaurus.Runtime) *table.Table {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(BorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == 0 {
				return HeaderStyle
			}

			return RowStyle
		}).
		Headers("ID", "Role", "Owner", "Local", "Streams")

	for _, s := range rt.Sockets() {
		t.Row(s.ID(), s.Role().String(), s.Owner(), s.LocalAddr().String(), strconv.Itoa(len(rt.Streams(s.ID()))))
	}

	return t
}
