package bridge

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type RouterConfig struct {
	Mode       string
	StaticPath string
	Secret     string
}

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable token kept in the
// session cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get("ct").(string)
		if token == "" {
			token = genClientToken()
			session.Set("ct", token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "bridge.http").Msg("save session")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter builds the UI engine. mounts register extra routes on the
// root router, such as the peer link endpoints.
func SetupRouter(ctx context.Context, cfg RouterConfig, ctl *Controller, mounts ...func(gin.IRouter)) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	for _, mount := range mounts {
		mount(r)
	}

	store := cookie.NewStore([]byte(cfg.Secret))
	ui := r.Group("/")
	ui.Use(sessions.Sessions("SLTalkieSessions", store))
	ui.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		ui.Static("/static", cfg.StaticPath)
		ui.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	api := ui.Group("/api")
	api.GET("/ws/events", func(c *gin.Context) {
		log.Info().Str("module", "bridge.http").Str("client", c.GetString("client_token")).Msg("ws events endpoint hit")
		ctl.HandleEvents(ctx, c)
	})
	api.GET("/messages", ctl.getMessages)
	api.GET("/messages/:id/audio", ctl.getAudio)
	api.GET("/peers", ctl.getPeers)
	api.GET("/status", ctl.getStatus)
	api.POST("/recording/start", ctl.postStartRecording)
	api.POST("/recording/stop", ctl.postStopRecording)
	api.POST("/play", ctl.postPlay)
	api.POST("/background", ctl.postBackground)

	log.Info().Str("module", "bridge.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
