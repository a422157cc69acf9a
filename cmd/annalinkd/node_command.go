package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"annalink.dev/annalink/internal/httpapi"
	"annalink.dev/annalink/internal/obs"
	"annalink.dev/annalink/internal/p2p"
)

var logger = obs.For("annalinkd")

func nodeCmd() *cobra.Command {
	var host string
	var port int
	var peer string
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Start the blockchain node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(host, port, peer)
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "host to bind to (default from config)")
	cmd.Flags().IntVar(&port, "port", 0, "port to bind to (default from config)")
	cmd.Flags().StringVar(&peer, "peer", "", "peer to connect to (format: host:port)")
	return cmd
}

func runNode(hostFlag string, portFlag int, peerFlag string) error {
	logger.Info("initializing annalink node components")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if hostFlag != "" {
		cfg.Host = hostFlag
	}
	if portFlag != 0 {
		cfg.Port = portFlag
	}
	logger.WithField("data_file", cfg.DataFile).Info("configuration resolved")

	store, manager, err := openChain()
	if err != nil {
		return fmt.Errorf("initialize chain: %w", err)
	}
	defer store.Close()
	logger.WithField("height", manager.Height()).Info("chain manager ready")

	registry := p2p.NewRegistry(cfg.MaxPeers)
	server := p2p.NewServer(cfg.Host, cfg.Port, manager, registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Start(ctx)
	}()
	logger.WithField("host", cfg.Host).WithField("port", cfg.Port).Info("p2p server started")

	if peerFlag != "" {
		peerHost, peerPortStr, splitErr := net.SplitHostPort(peerFlag)
		if splitErr != nil {
			logger.WithError(splitErr).Warn("ignoring malformed --peer value")
		} else if peerPort, convErr := strconv.Atoi(peerPortStr); convErr != nil {
			logger.WithError(convErr).Warn("ignoring malformed --peer port")
		} else if seeded := registry.AddPeer(strings.TrimSpace(peerHost), peerPort); seeded != nil {
			// Dial the seeded peer before the sync loop's first pass so
			// it is connected (and syncable) from round one. A failure
			// here is not fatal: the sync loop redials unconnected
			// known peers every round.
			if err := p2p.ConnectToPeer(server, seeded); err != nil {
				logger.WithField("peer", peerFlag).WithError(err).Warn("seeded peer not reachable yet")
			}
		}
	}

	go p2p.RunSyncLoop(ctx, server)
	logger.Info("outbound sync loop started")

	httpAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.HTTPPort))
	httpServer := &http.Server{Addr: httpAddr, Handler: httpapi.NewRouter(manager, registry)}
	go func() {
		logger.WithField("addr", httpAddr).Info("http api listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("http api failed")
		}
	}()

	logger.Info("node running, press Ctrl+C to stop")
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.WithField("signal", sig).Warn("caught signal, starting graceful shutdown")
	case err := <-serverErrCh:
		if err != nil {
			logger.WithError(err).Error("p2p server exited unexpectedly")
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http api shutdown did not complete cleanly")
	}
	logger.Info("node stopped")
	return nil
}
