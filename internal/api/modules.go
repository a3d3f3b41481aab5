package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/verdantio/greenhouse-backend/internal/cache"
	"github.com/verdantio/greenhouse-backend/internal/domain"
	"github.com/verdantio/greenhouse-backend/internal/middleware"
	"github.com/verdantio/greenhouse-backend/internal/models"
	"github.com/verdantio/greenhouse-backend/internal/repository"
	"go.uber.org/zap"
)

// ModuleHandler serves module claim/release, configuration, and the
// target-vs-actual comparison.
type ModuleHandler struct {
	repo repository.ModuleRepository
	// favorites holds the cached favorite view; unclaiming a sole main
	// module can delete a greenhouse and with it the caller's favorite.
	favorites *cache.FavoriteCache
	logger    *zap.Logger
}

func NewModuleHandler(repo repository.ModuleRepository, favorites *cache.FavoriteCache, logger *zap.Logger) *ModuleHandler {
	return &ModuleHandler{repo: repo, favorites: favorites, logger: logger}
}

func parseModuleID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid module id"})
		return 0, false
	}
	return id, true
}

// ListAvailable handles GET /api/modules/available
func (h *ModuleHandler) ListAvailable(c *gin.Context) {
	modules, err := h.repo.ListAvailable(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list available modules", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list available modules"})
		return
	}
	c.JSON(http.StatusOK, modules)
}

// ListOwned handles GET /api/modules/user
func (h *ModuleHandler) ListOwned(c *gin.Context) {
	userID := middleware.GetUserID(c)

	modules, err := h.repo.ListOwned(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list owned modules", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list modules"})
		return
	}
	c.JSON(http.StatusOK, modules)
}

// Claim handles PUT /api/modules/:id/claim
func (h *ModuleHandler) Claim(c *gin.Context) {
	moduleID, ok := parseModuleID(c)
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	module, err := h.repo.Claim(c.Request.Context(), userID, moduleID)
	if err != nil {
		writeError(c, h.logger, err, "failed to claim module")
		return
	}
	c.JSON(http.StatusOK, module)
}

// Unclaim handles PUT /api/modules/:id/unclaim
func (h *ModuleHandler) Unclaim(c *gin.Context) {
	moduleID, ok := parseModuleID(c)
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	if err := h.repo.Unclaim(c.Request.Context(), userID, moduleID); err != nil {
		writeError(c, h.logger, err, "failed to unclaim module")
		return
	}
	if h.favorites != nil {
		h.favorites.Invalidate(c.Request.Context(), userID)
	}
	c.Status(http.StatusNoContent)
}

type setStatusRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// SetStatus handles PUT /api/modules/:id/status
func (h *ModuleHandler) SetStatus(c *gin.Context) {
	moduleID, ok := parseModuleID(c)
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	module, err := h.repo.SetStatus(c.Request.Context(), userID, moduleID, *req.IsActive)
	if err != nil {
		writeError(c, h.logger, err, "failed to set module status")
		return
	}
	c.JSON(http.StatusOK, module)
}

// UpdateSettings handles PUT /api/modules/:id/settings
func (h *ModuleHandler) UpdateSettings(c *gin.Context) {
	moduleID, ok := parseModuleID(c)
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	var req models.ModuleSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	module, err := h.repo.UpdateSettings(c.Request.Context(), userID, moduleID, req)
	if err != nil {
		writeError(c, h.logger, err, "failed to update module settings")
		return
	}
	c.JSON(http.StatusOK, module)
}

// GetSettings handles GET /api/modules/:id/settings, the device pull of
// its own targets. Devices have no session; they are identified by the
// module id they received at connect time.
func (h *ModuleHandler) GetSettings(c *gin.Context) {
	moduleID, ok := parseModuleID(c)
	if !ok {
		return
	}

	module, err := h.repo.GetByID(c.Request.Context(), moduleID)
	if err != nil {
		h.logger.Error("failed to get module", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get module"})
		return
	}
	if module == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "module not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"target_temperature": module.TargetTemperature,
		"target_humidity":    module.TargetHumidity,
		"target_lighting":    module.TargetLighting,
	})
}

type copySettingsRequest struct {
	SourceModuleID *int64 `json:"source_module_id" binding:"required"`
}

// CopySettings handles POST /api/modules/:id/copy-settings
func (h *ModuleHandler) CopySettings(c *gin.Context) {
	targetID, ok := parseModuleID(c)
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	var req copySettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	module, err := h.repo.CopySettings(c.Request.Context(), userID, targetID, *req.SourceModuleID)
	if err != nil {
		writeError(c, h.logger, err, "failed to copy module settings")
		return
	}
	c.JSON(http.StatusOK, module)
}

// TargetVsActual handles GET /api/modules/:id/target-vs-actual.
// Metrics lacking a target or a reading carry no classification.
func (h *ModuleHandler) TargetVsActual(c *gin.Context) {
	moduleID, ok := parseModuleID(c)
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	module, err := h.repo.GetByID(c.Request.Context(), moduleID)
	if err != nil {
		h.logger.Error("failed to get module", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get module"})
		return
	}
	if module == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "module not found"})
		return
	}
	if module.OwnerUserID == nil || *module.OwnerUserID != userID {
		writeError(c, h.logger, domain.Forbiddenf("module %d is not owned by you", moduleID), "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"module_id":      module.ID,
		"tolerance":      domain.Tolerance,
		"classification": domain.CompareReadings(module),
	})
}
