package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leon6002/keybox-sub000/api"
	"github.com/leon6002/keybox-sub000/internal/store"
)

var (
	httpIP         string
	httpPort       string
	serverCertPath string
	serverKeyPath  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reference REST API for the vault sync surface",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return rootCmdLoadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := store.InitDB(cfg.DB.Type, cfg.DB.DSN)
		if err != nil {
			return err
		}

		ip := httpIP
		if ip == "" {
			ip = cfg.HTTP.IP
		}
		port := httpPort
		if port == "" {
			port = cfg.HTTP.Port
		}
		addr := net.JoinHostPort(ip, port)

		router := api.NewRouter(state)
		return serveHTTP(addr, router)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&httpIP, "ip", "", "Listen IP address (overrides config)")
	serveCmd.Flags().StringVar(&httpPort, "port", "", "Listen port (overrides config)")
	serveCmd.Flags().StringVar(&serverCertPath, "server-cert-path", "", "Path to server TLS certificate")
	serveCmd.Flags().StringVar(&serverKeyPath, "server-key-path", "", "Path to server TLS key")
}

// Server wraps an http.Server with graceful shutdown on SIGINT/SIGTERM,
// grounded on the teacher's ManufacturingServer in cmd/manufacturing.go.
type Server struct {
	addr    string
	handler http.Handler
	useTLS  bool
}

// NewServer constructs a Server.
func NewServer(addr string, handler http.Handler, useTLS bool) *Server {
	return &Server{addr: addr, handler: handler, useTLS: useTLS}
}

// Start listens and serves until a signal requests shutdown.
func (s *Server) Start() error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 3 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		slog.Debug("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			slog.Debug("Server forced to shutdown:", "err", err)
		}
	}()

	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	defer func() { _ = lis.Close() }()
	slog.Info("Listening", "local", lis.Addr().String())

	if s.useTLS {
		preferredCipherSuites := []uint16{
			tls.TLS_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		}
		if serverCertPath == "" || serverKeyPath == "" {
			return fmt.Errorf("no TLS cert or key provided")
		}
		srv.TLSConfig = &tls.Config{
			MinVersion:   tls.VersionTLS12,
			CipherSuites: preferredCipherSuites,
		}
		return srv.ServeTLS(lis, serverCertPath, serverKeyPath)
	}
	return srv.Serve(lis)
}

func serveHTTP(addr string, handler http.Handler) error {
	useTLS := serverCertPath != "" && serverKeyPath != ""
	slog.Debug("Starting server on:", "addr", addr)
	return NewServer(addr, handler, useTLS).Start()
}
