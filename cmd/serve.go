package cmd

import (
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/techquest-tech/pglocks/pkg/api"
	"github.com/techquest-tech/pglocks/pkg/core"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "serve /healthz and /locks over http",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return core.GetContainer().Invoke(func(_ *gorm.DB, router *gin.Engine, logger *zap.Logger) error {
			core.PrintVersion()
			api.NewLocksController(router, logger)
			core.NotifyStarted()
			defer core.NotifyStopping()
			return api.Serve(cmd.Context(), router, logger)
		})
	},
}
