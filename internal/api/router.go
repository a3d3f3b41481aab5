package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/verdantio/greenhouse-backend/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth       *AuthHandler
	Modules    *ModuleHandler
	Greenhouse *GreenhouseHandler
	Favorite   *FavoriteHandler
	Device     *DeviceHandler
	Telemetry  *TelemetryHandler
}

// NewRouter wires all routes. Three access tiers:
//   - public: health, register, login
//   - device: endpoints the modules call, identified by MAC/module id
//   - session: everything else, behind the JWT middleware
func NewRouter(h Handlers, jwtSecret string, health func() error) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		if health != nil {
			if err := health(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// Public auth endpoints: these produce the token everything else
	// requires.
	api.POST("/auth/register", h.Auth.Register)
	api.POST("/auth/login", h.Auth.Login)

	// Device-facing endpoints. No user session: a module knows its MAC
	// and the id it was handed at connect time.
	api.POST("/modules/connect", h.Device.Connect)
	api.GET("/modules/status", h.Device.Status)
	api.PUT("/modules/:id/sensor-values", h.Device.SensorValues)
	api.GET("/modules/:id/settings", h.Modules.GetSettings)
	api.POST("/adjust", h.Device.Adjust)

	// Session-scoped endpoints.
	authed := api.Group("")
	authed.Use(middleware.AuthMiddleware(jwtSecret))

	authed.GET("/user", h.Auth.GetMe)

	authed.GET("/modules/available", h.Modules.ListAvailable)
	authed.GET("/modules/user", h.Modules.ListOwned)
	authed.PUT("/modules/:id/claim", h.Modules.Claim)
	authed.PUT("/modules/:id/unclaim", h.Modules.Unclaim)
	authed.PUT("/modules/:id/status", h.Modules.SetStatus)
	authed.PUT("/modules/:id/settings", h.Modules.UpdateSettings)
	authed.POST("/modules/:id/copy-settings", h.Modules.CopySettings)
	authed.GET("/modules/:id/target-vs-actual", h.Modules.TargetVsActual)
	authed.GET("/modules/:id/history-24h", h.Telemetry.History)
	authed.GET("/modules/:id/live", h.Telemetry.Live)

	authed.POST("/greenhouses/create", h.Greenhouse.Create)
	authed.GET("/greenhouses/user", h.Greenhouse.List)
	authed.DELETE("/greenhouses/:id/delete", h.Greenhouse.Delete)
	authed.PUT("/greenhouses/:id/main-module", h.Greenhouse.SetMainModule)

	authed.GET("/user/favorite-greenhouse", h.Favorite.Get)
	authed.PUT("/user/favorite-greenhouse", h.Favorite.Set)

	return r
}
