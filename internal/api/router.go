package api

import (
	"fmt"
	"net/http"
	"time"

	"stress-detect-go/config"
	"stress-detect-go/internal/api/handlers"
	"stress-detect-go/internal/api/middleware"
	"stress-detect-go/internal/debug"
	"stress-detect-go/internal/server/sse"
	"stress-detect-go/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
)

// Dependencies sind die Dienste, die der Router bedient. Debug und Events dürfen nil sein.
type Dependencies struct {
	Analyzer handlers.Analyzer
	Engine   handlers.EngineStatus
	Results  *services.ResultService
	Debug    *debug.Service
	Events   *sse.Hub
}

// NewRouter erstellt die gin-Engine mit Middleware und allen Routen
func NewRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, error) {
	translator, err := middleware.NewTranslator(cfg.I18n.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize translations: %w", err)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.MaxMultipartMemory = int64(cfg.Pipeline.MaxUploadMB) << 20

	// CORS für Browser-Clients (Webcam-Seite)
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", handlers.SubjectHeader, middleware.RequestIDHeader)
	corsCfg.ExposeHeaders = []string{middleware.RequestIDHeader}
	corsCfg.MaxAge = 12 * time.Hour
	if len(cfg.Server.CORSOrigins) == 0 || contains(cfg.Server.CORSOrigins, "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.Server.CORSOrigins
	}
	router.Use(cors.New(corsCfg))

	// Session-Store für die Sprachauswahl
	store := cookie.NewStore([]byte(cfg.Server.SessionSecret))
	store.Options(sessions.Options{Path: "/", MaxAge: 30 * 24 * 3600, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	router.Use(sessions.Sessions("stress-detect", store))
	router.Use(middleware.I18n(translator))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	if cfg.Server.RateLimit > 0 {
		api.Use(middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst).Middleware())
	}
	api.Use(middleware.Auth(cfg.Auth.JWTSecret))

	handlers.NewAPIHandler(cfg, deps.Analyzer, deps.Engine, deps.Results).RegisterRoutes(api)

	if deps.Debug != nil {
		deps.Debug.RegisterRoutes(api)
	}
	if deps.Events != nil {
		api.GET("/events", deps.Events.Handler)
	}

	return router, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
