package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/verdantio/greenhouse-backend/internal/cache"
	"github.com/verdantio/greenhouse-backend/internal/middleware"
	"github.com/verdantio/greenhouse-backend/internal/repository"
	"go.uber.org/zap"
)

type GreenhouseHandler struct {
	repo      repository.GreenhouseRepository
	favorites *cache.FavoriteCache
	logger    *zap.Logger
}

func NewGreenhouseHandler(repo repository.GreenhouseRepository, favorites *cache.FavoriteCache, logger *zap.Logger) *GreenhouseHandler {
	return &GreenhouseHandler{repo: repo, favorites: favorites, logger: logger}
}

func parseGreenhouseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid greenhouse id"})
		return 0, false
	}
	return id, true
}

type createGreenhouseRequest struct {
	Name               string  `json:"greenhouse_name" binding:"required"`
	MainModuleID       *int64  `json:"main_module_id" binding:"required"`
	SecondaryModuleIDs []int64 `json:"secondary_module_ids"`
}

// Create handles POST /api/greenhouses/create
func (h *GreenhouseHandler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req createGreenhouseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gh, err := h.repo.Create(c.Request.Context(), userID, req.Name, *req.MainModuleID, req.SecondaryModuleIDs)
	if err != nil {
		writeError(c, h.logger, err, "failed to create greenhouse")
		return
	}
	c.JSON(http.StatusCreated, gh)
}

// List handles GET /api/greenhouses/user
func (h *GreenhouseHandler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)

	greenhouses, err := h.repo.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list greenhouses", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list greenhouses"})
		return
	}
	c.JSON(http.StatusOK, greenhouses)
}

// Delete handles DELETE /api/greenhouses/:id/delete
func (h *GreenhouseHandler) Delete(c *gin.Context) {
	greenhouseID, ok := parseGreenhouseID(c)
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	if err := h.repo.Delete(c.Request.Context(), userID, greenhouseID); err != nil {
		writeError(c, h.logger, err, "failed to delete greenhouse")
		return
	}
	// The delete may have cleared the caller's favorite.
	if h.favorites != nil {
		h.favorites.Invalidate(c.Request.Context(), userID)
	}
	c.Status(http.StatusNoContent)
}

type setMainModuleRequest struct {
	ModuleID *int64 `json:"module_id" binding:"required"`
}

// SetMainModule handles PUT /api/greenhouses/:id/main-module
func (h *GreenhouseHandler) SetMainModule(c *gin.Context) {
	greenhouseID, ok := parseGreenhouseID(c)
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	var req setMainModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	gh, err := h.repo.SetMainModule(c.Request.Context(), userID, greenhouseID, *req.ModuleID)
	if err != nil {
		writeError(c, h.logger, err, "failed to set main module")
		return
	}
	if h.favorites != nil {
		h.favorites.Invalidate(c.Request.Context(), userID)
	}
	c.JSON(http.StatusOK, gh)
}
