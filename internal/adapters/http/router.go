package http

import (
	"context"

	"github.com/dkeye/callrelay/internal/adapters/signal"
	"github.com/dkeye/callrelay/internal/config"
	"github.com/dkeye/callrelay/internal/core"
	"github.com/dkeye/callrelay/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	sessionName     = "CallRelaySessions"
	clientTokenKey  = "client_token"
	sessionTokenKey = "ct"
)

// Deps are the pieces the router serves.
type Deps struct {
	Relay  core.Signaling
	Store  core.CallStore
	Signal *signal.SignalWSController
	// Ready reports whether the store backend is reachable.
	Ready func(ctx context.Context) error
}

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every browser a stable token kept in the
// session cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(sessionTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(sessionTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", healthHandler(deps.Ready))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")

	calls := &callHandlers{relay: deps.Relay, store: deps.Store}
	api.POST("/calls", calls.create)
	api.GET("/calls/:id", calls.get)
	api.DELETE("/calls/:id", calls.delete)
	api.GET("/calls/:id/candidates/:side", calls.candidates)

	if deps.Signal != nil {
		api.GET("/ws/signal", func(c *gin.Context) {
			log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientTokenKey)).Msg("ws signal endpoint hit")
			deps.Signal.HandleSignal(ctx, c)
		})
	}

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
