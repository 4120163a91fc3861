// Package cmd implements the snapctl command line client.
package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/oneshot/internal/config"
)

var (
	serverURL string
	grpcAddr  string
	dataDir   string
)

var rootCmd = &cobra.Command{
	Use:   "snapctl",
	Short: "Control the oneshot capture server",
	Long: `snapctl triggers one-shot screen captures on a running oneshot server,
reads the latest capture outcome and browses the screenshot gallery.`,
	SilenceUsage: true,
}

func init() {
	cfg := config.Load()
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", httpURL(cfg.HTTPAddr), "HTTP address of the capture server")
	rootCmd.PersistentFlags().StringVar(&grpcAddr, "grpc", dialAddr(cfg.GRPCAddr), "gRPC address of the capture server")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", cfg.DataDir, "Directory holding the oneshot database")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// httpURL turns a listen address such as ":8000" into a base URL.
func httpURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	return "http://" + dialAddr(addr)
}

// dialAddr fills in localhost for listen addresses without a host.
func dialAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

func databasePath() string {
	cfg := config.Default()
	cfg.DataDir = dataDir
	return cfg.DatabasePath()
}
