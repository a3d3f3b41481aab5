package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/verdantio/greenhouse-backend/internal/domain"
	"go.uber.org/zap"
)

// writeError translates a repository error into an HTTP response. The
// four domain sentinels map onto their status codes; anything else is an
// internal failure that gets logged in full and reported generically.
func writeError(c *gin.Context, logger *zap.Logger, err error, internalMsg string) {
	var status int
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	default:
		logger.Error(internalMsg, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": internalMsg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
