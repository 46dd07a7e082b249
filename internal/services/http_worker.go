package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hookdeck/hostnode/internal/logging"
	"github.com/hookdeck/hostnode/internal/worker"
	"go.uber.org/zap"
)

const httpShutdownTimeout = 10 * time.Second

// HTTPServerWorker runs an HTTP server as a supervised worker.
type HTTPServerWorker struct {
	server *http.Server
	logger *logging.Logger
}

func NewHTTPServerWorker(addr string, handler http.Handler, logger *logging.Logger) worker.Worker {
	return &HTTPServerWorker{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

func (w *HTTPServerWorker) Name() string {
	return "http-server"
}

// Run serves until ctx is cancelled, then shuts the server down gracefully.
func (w *HTTPServerWorker) Run(ctx context.Context) error {
	logger := w.logger.Ctx(ctx)
	logger.Info("http server listening", zap.String("addr", w.server.Addr))

	errChan := make(chan error, 1)
	go func() {
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), httpShutdownTimeout)
		defer cancel()

		if err := w.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down http server", zap.Error(err))
			return err
		}
		logger.Info("http server shut down")
		return nil

	case err := <-errChan:
		logger.Error("http server error", zap.Error(err))
		return err
	}
}
