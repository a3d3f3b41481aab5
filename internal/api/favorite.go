package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/verdantio/greenhouse-backend/internal/cache"
	"github.com/verdantio/greenhouse-backend/internal/middleware"
	"github.com/verdantio/greenhouse-backend/internal/repository"
	"go.uber.org/zap"
)

// FavoriteHandler serves the per-user favorite greenhouse pointer. Reads
// go through the Redis cache (short TTL, eventually consistent); writes
// go to Postgres and invalidate.
type FavoriteHandler struct {
	repo      repository.FavoriteRepository
	favorites *cache.FavoriteCache
	logger    *zap.Logger
}

func NewFavoriteHandler(repo repository.FavoriteRepository, favorites *cache.FavoriteCache, logger *zap.Logger) *FavoriteHandler {
	return &FavoriteHandler{repo: repo, favorites: favorites, logger: logger}
}

// Get handles GET /api/user/favorite-greenhouse. Returns the resolved
// greenhouse with its member modules, or a JSON null when none is set.
func (h *FavoriteHandler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	ctx := c.Request.Context()

	if h.favorites != nil {
		if gh, hit := h.favorites.Get(ctx, userID); hit {
			c.JSON(http.StatusOK, gh)
			return
		}
	}

	gh, err := h.repo.Get(ctx, userID)
	if err != nil {
		writeError(c, h.logger, err, "failed to get favorite greenhouse")
		return
	}
	if h.favorites != nil {
		h.favorites.Put(ctx, userID, gh)
	}
	c.JSON(http.StatusOK, gh)
}

type setFavoriteRequest struct {
	GreenhouseID *int64 `json:"greenhouse_id"`
}

// Set handles PUT /api/user/favorite-greenhouse. A null greenhouse_id
// clears the favorite and always succeeds.
func (h *FavoriteHandler) Set(c *gin.Context) {
	userID := middleware.GetUserID(c)

	var req setFavoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.repo.Set(c.Request.Context(), userID, req.GreenhouseID); err != nil {
		writeError(c, h.logger, err, "failed to set favorite greenhouse")
		return
	}
	if h.favorites != nil {
		h.favorites.Invalidate(c.Request.Context(), userID)
	}
	c.Status(http.StatusNoContent)
}
