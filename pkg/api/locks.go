package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"github.com/techquest-tech/pglocks/pkg/orm"
	"github.com/techquest-tech/pglocks/pkg/pglock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LocksController struct {
	logger *zap.Logger
	// lookup resolves the ?using= query parameter.
	lookup func(name string) (*gorm.DB, bool)
}

func NewLocksController(router gin.IRouter, logger *zap.Logger) *LocksController {
	controller := &LocksController{
		logger: logger,
		lookup: orm.Connection,
	}
	controller.Register(router)
	return controller
}

func (h *LocksController) Register(router gin.IRouter) {
	viper.SetDefault(HealthURIKey, HealthURIValue)
	viper.SetDefault(LocksURIKey, LocksURIValue)
	router.GET(viper.GetString(HealthURIKey), h.Ping)
	router.GET(viper.GetString(LocksURIKey), h.List)
}

func (h *LocksController) db(c *gin.Context) (*gorm.DB, bool) {
	using := c.Query("using")
	db, ok := h.lookup(using)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"status": fmt.Sprintf("connection %q is not configured", using)})
	}
	return db, ok
}

func (h *LocksController) Ping(c *gin.Context) {
	db, ok := h.db(c)
	if !ok {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": fmt.Sprintf("connection to db failed. %v", err)})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": fmt.Sprintf("ping test failed. %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

// List returns the advisory locks of the database, optionally only those matching ?key=.
func (h *LocksController) List(c *gin.Context) {
	db, ok := h.db(c)
	if !ok {
		return
	}

	held, err := pglock.Held(c.Request.Context(), db)
	if err != nil {
		h.logger.Error("list advisory locks failed.", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": err.Error()})
		return
	}

	if raw := c.Query("key"); raw != "" {
		key, err := pglock.ParseKeyString(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": err.Error()})
			return
		}
		held = pglock.Filter(held, key)
	}
	c.JSON(http.StatusOK, held)
}
