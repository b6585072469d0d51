package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/prefd-io/prefd/internal/server"
)

func newDaemonCommand() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:           "daemon",
		Short:         "Serve the profile store over HTTP with a WebSocket watch stream",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}
	daemonCmd.Flags().Int("port", 7643, "HTTP listen port")
	daemonCmd.Flags().String("bind", "127.0.0.1", "Bind address")
	daemonCmd.Flags().StringSlice("allowed-origin", nil, "Allowed origins for WebSocket watchers (repeatable)")
	return daemonCmd
}

func runDaemon(cmd *cobra.Command, args []string) error {
	svc, bus, cleanup, err := openServiceWithBus(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	origins, _ := cmd.Flags().GetStringSlice("allowed-origin")
	allowed := make(map[string]bool, len(origins))
	for _, origin := range origins {
		allowed[origin] = true
	}
	originAllowed := func(origin string) bool { return allowed[origin] }

	api := server.NewAPIServer(svc, bus, originAllowed)
	if err := api.LoadInitialState(cmd.Context()); err != nil {
		return fmt.Errorf("load initial state: %w", err)
	}

	port, _ := cmd.Flags().GetInt("port")
	bind, _ := cmd.Flags().GetString("bind")
	address := net.JoinHostPort(bind, strconv.Itoa(port))

	httpServer := &http.Server{
		Addr:    address,
		Handler: api.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[Daemon] listening on %s", address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("[Daemon] received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
