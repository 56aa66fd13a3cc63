package api

import (
	"log/slog"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rawblock/watermark-gateway/internal/config"
	"github.com/rawblock/watermark-gateway/internal/detector"
	"github.com/rawblock/watermark-gateway/internal/gateway"
	"github.com/rawblock/watermark-gateway/internal/registry/chain"
	"github.com/rawblock/watermark-gateway/internal/registry/verify"
	"github.com/rawblock/watermark-gateway/internal/store"
)

// APIHandler wires the gateway, registry, and watermark detector into
// one set of HTTP handlers.
type APIHandler struct {
	cfg      *config.Config
	store    *store.Store
	chain    *chain.Chain
	verifier *verify.Verifier
	detector *detector.Detector
	gateway  *gateway.Gateway
	hub      *Hub
	log      *slog.Logger
}

// SetupRouter builds the full gin.Engine: CORS, public/protected route
// groups, the websocket stream, and every registry/gateway endpoint.
func SetupRouter(cfg *config.Config, s *store.Store, ch *chain.Chain, v *verify.Verifier, d *detector.Detector, gw *gateway.Gateway, hub *Hub, log *slog.Logger) *gin.Engine {
	r := gin.Default()

	// Enable CORS — configurable via ALLOWED_ORIGINS env var.
	// Production: ALLOWED_ORIGINS=https://example.com,https://www.example.com
	// Development: ALLOWED_ORIGINS=http://localhost:3000 (or leave empty for *)
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-Idempotency-Key, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	r.Use(requestIDMiddleware)

	handler := &APIHandler{
		cfg:      cfg,
		store:    s,
		chain:    ch,
		verifier: v,
		detector: d,
		gateway:  gw,
		hub:      hub,
		log:      log,
	}

	r.GET("/internal/watermark/stream", hub.Subscribe)
	r.GET("/api/registry/chain/status", handler.handleChainStatus)
	r.GET("/api/registry/chain/blocks", handler.handleListBlocks)
	r.GET("/api/registry/chain/block/:n", handler.handleGetBlock)
	r.GET("/api/registry/companies", handler.handleListCompanies)
	r.POST("/api/registry/verify", handler.handleRegistryVerify)
	r.POST("/api/apply", handler.handleApply)
	r.POST("/internal/watermark/verify", handler.handleDetectorVerify)
	r.POST("/internal/watermark/strip", handler.handleStrip)

	admin := r.Group("/api/registry")
	admin.Use(AdminAuthMiddleware(cfg.RegistryAdminSecret, log))
	{
		admin.POST("/companies", handler.handleCreateCompany)
		admin.POST("/companies/:issuer_id/deactivate", handler.handleDeactivateCompany)
		admin.POST("/anchor", handler.handleAnchor)
	}

	gen := r.Group("")
	gen.Use(NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst).Middleware())
	{
		gen.POST("/v1/completions", handler.handleCompletions)
		gen.POST("/v1/chat/completions", handler.handleChatCompletions)
	}

	return r
}
