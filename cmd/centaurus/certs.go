package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fr13n8/centaurus/config"
	"github.com/fr13n8/centaurus/utils/certs"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	certHost string
	certDir  string

	certsCmd = &cobra.Command{
		Use:   "certs",
		Short: "Generate a self-signed server certificate, or show the existing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cm := certs.NewSelfSignedCertManager(certHost, certDir)

			hash, err := cm.GetCertHash()
			if err != nil {
				log.Error().Err(err).Msg("failed to prepare certificate")
				return err
			}

			t := table.New().
				Border(lipgloss.NormalBorder()).
				BorderStyle(BorderStyle).
				StyleFunc(func(row, col int) lipgloss.Style {
					if row == 0 {
						return HeaderStyle
					}

					return RowStyle
				}).
				Headers("Host", "Certificate", "Key", "SHA-256")
			t.Row(cm.Host, cm.CertPath, cm.KeyPath, fmt.Sprintf("%X", hash))

			fmt.Println(t)
			return nil
		},
	}
)

func init() {
	certsCmd.Flags().StringVar(&certHost, "host", "localhost", "name the certificate is issued for")
	certsCmd.Flags().StringVar(&certDir, "dir", config.CentaurusPath, "directory to write the certificate and key to")
}
