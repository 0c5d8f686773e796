package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"peerline/go-backend/internal/adapters/ws"
	"peerline/go-backend/internal/auth"
	"peerline/go-backend/internal/config"
	"peerline/go-backend/internal/store"
)

// AuthMiddleware rejects a request before any registry mutation can
// happen. Browsers cannot set headers on websocket dials, so the
// bearer token is also accepted as a query parameter.
func AuthMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing credential"})
			return
		}
		uid, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credential"})
			return
		}
		c.Set("user_id", string(uid))
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, verifier *auth.Verifier, ctl *ws.Controller, messages *store.Messages) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(AuthMiddleware(verifier))

	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("user", c.GetString("user_id")).Msg("ws endpoint hit")
		ctl.HandleWS(ctx, c)
	})

	api.GET("/messages", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		msgs, err := messages.Recent(c.Request.Context(), limit)
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("list messages")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	})

	return r
}
