// Package handlers exposes the agent's control and status HTTP API.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AzrielTheHellrazor/polymarket-agent/middleware"
	"github.com/AzrielTheHellrazor/polymarket-agent/models"
	"github.com/AzrielTheHellrazor/polymarket-agent/storage"
	"github.com/AzrielTheHellrazor/polymarket-agent/syncer"
)

// Handler serves the control API over the running agent components.
type Handler struct {
	scanner *syncer.BlockLogScanner
	router  *syncer.Router
	engine  *syncer.Engine
	cache   *syncer.MetadataCache
	audit   storage.TradeLog // optional
}

func New(scanner *syncer.BlockLogScanner, router *syncer.Router, engine *syncer.Engine, cache *syncer.MetadataCache, audit storage.TradeLog) *Handler {
	return &Handler{
		scanner: scanner,
		router:  router,
		engine:  engine,
		cache:   cache,
		audit:   audit,
	}
}

// RegisterRoutes mounts all endpoints. Middleware in auth guards the /api
// group; /health stays open for probes.
func (h *Handler) RegisterRoutes(r *gin.Engine, auth ...gin.HandlerFunc) {
	r.GET("/health", h.health)

	api := r.Group("/api", auth...)
	{
		api.GET("/status", h.status)
		api.GET("/wallets", h.listWallets)
		api.POST("/wallets", h.addWallet)
		api.DELETE("/wallets/:address", middleware.ValidateWalletParam("address"), h.removeWallet)
		api.GET("/positions", h.positions)
		api.GET("/decisions", h.decisions)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) status(c *gin.Context) {
	hits, misses, refreshes := h.cache.Stats()
	day := h.engine.Positions().Day()
	c.JSON(http.StatusOK, gin.H{
		"scanner": h.scanner.Metrics(),
		"router":  h.router.Metrics(),
		"engine":  h.engine.Metrics(),
		"cache": gin.H{
			"entries":   h.cache.Len(),
			"hits":      hits,
			"misses":    misses,
			"refreshes": refreshes,
		},
		"day": day,
	})
}

func (h *Handler) listWallets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"wallets": h.router.Wallets()})
}

func (h *Handler) addWallet(c *gin.Context) {
	var req models.WatchedWallet
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if !middleware.IsValidEthAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
		return
	}
	if err := h.router.SetWallet(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallets": h.router.Wallets()})
}

func (h *Handler) removeWallet(c *gin.Context) {
	h.router.RemoveWallet(c.Param("address"))
	c.JSON(http.StatusOK, gin.H{"wallets": h.router.Wallets()})
}

func (h *Handler) positions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": h.engine.Positions().Positions()})
}

func (h *Handler) decisions(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusOK, gin.H{"decisions": []storage.CopyDecision{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	decisions, err := h.audit.RecentDecisions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}
