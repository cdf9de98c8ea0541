package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	urfave "github.com/urfave/cli/v3"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverPortDefault         = 8080
)

var (
	portFlag = &urfave.IntFlag{
		Name:     "port",
		Usage:    "Port on which the server will listen",
		Value:    serverPortDefault,
		Required: false,
	}

	serverCmd = &urfave.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start local HTTP scoring server",
		Action:  cmdStartServer,
		Flags: []urfave.Flag{
			portFlag,
		},
	}
)

func cmdStartServer(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)
	port := int(cmd.Int(portFlag.Name))
	address := fmt.Sprintf("127.0.0.1:%d", port)

	// run history writes from concurrent requests go through one connection
	cfg.DB.SetMaxOpenConns(1)

	mux := makeRouter(cfg)
	s := &http.Server{
		Addr:           address,
		Handler:        mux,
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("server started", "address", fmt.Sprintf("http://%s", address))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("starting server: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

func makeRouter(cfg *appConfig) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/score", scoreAPIHandler(cfg))
	mux.HandleFunc("GET /api/runs", runsAPIHandler(cfg.DB))
	mux.HandleFunc("GET /api/runs/{id}", runAPIHandler(cfg.DB))
	mux.HandleFunc("GET /api/artifacts", artifactsAPIHandler(cfg))

	return mux
}
