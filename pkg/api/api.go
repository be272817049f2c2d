package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"github.com/techquest-tech/pglocks/pkg/core"
	"go.uber.org/zap"
)

const (
	KeyAddress     = "address"
	HealthURIKey   = "healthz"
	HealthURIValue = "/healthz"
	LocksURIKey    = "locksUri"
	LocksURIValue  = "/locks"
)

func init() {
	core.Provide(initEngine)
}

func initEngine(logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	return router
}

// Serve runs router until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, router http.Handler, logger *zap.Logger) error {
	viper.SetDefault(KeyAddress, ":5001")
	srv := &http.Server{
		Addr:              viper.GetString(KeyAddress),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.String("address", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("app is stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
