// Package httpapi is the local control surface: status plus the
// mute/deafen and microphone operations. The visual UI lives outside
// this process and drives these endpoints.
package httpapi

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/ProximityVoice/internal/app"
	"github.com/dkeye/ProximityVoice/internal/config"
	"github.com/dkeye/ProximityVoice/internal/core"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, ctrl *app.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ProximitySessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Int("port", cfg.APIPort).Msg("router setup")

	api := r.Group("/api")

	api.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.Status())
	})

	api.POST("/voice", func(c *gin.Context) {
		var req struct {
			Muted    *bool `json:"muted"`
			Deafened *bool `json:"deafened"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || (req.Muted == nil && req.Deafened == nil) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		// Deafen first so a combined request lands in a consistent state.
		if req.Deafened != nil {
			ctrl.Events() <- core.SetDeafenedEvent{Deafened: *req.Deafened}
		}
		if req.Muted != nil {
			ctrl.Events() <- core.SetMutedEvent{Muted: *req.Muted}
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api.POST("/microphone", func(c *gin.Context) {
		var req struct {
			Device string `json:"device"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		ctrl.Events() <- core.SwitchMicEvent{DeviceID: req.Device}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	return r
}
