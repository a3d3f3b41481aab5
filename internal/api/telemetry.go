package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/verdantio/greenhouse-backend/internal/middleware"
	"github.com/verdantio/greenhouse-backend/internal/models"
	"github.com/verdantio/greenhouse-backend/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultHistoryHours = 24
	maxHistoryHours     = 24 * 7

	liveInterval   = 5 * time.Second
	liveWriteLimit = 10 * time.Second
)

// TelemetryHandler serves historical samples and the live stream.
type TelemetryHandler struct {
	telemetry repository.TelemetryRepository
	modules   repository.ModuleRepository
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

func NewTelemetryHandler(telemetry repository.TelemetryRepository, modules repository.ModuleRepository, logger *zap.Logger) *TelemetryHandler {
	return &TelemetryHandler{
		telemetry: telemetry,
		modules:   modules,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Session auth happens before the upgrade; the browser
			// origin adds nothing here.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

type historyPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// History handles GET /api/modules/:id/history-24h. The response groups
// samples per metric, matching what the charts consume; samples that
// lack a metric contribute no point to that series.
func (h *TelemetryHandler) History(c *gin.Context) {
	moduleID, ok := parseModuleID(c)
	if !ok {
		return
	}

	hours := defaultHistoryHours
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxHistoryHours {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hours parameter"})
			return
		}
		hours = parsed
	}

	samples, err := h.telemetry.History(c.Request.Context(), moduleID, time.Duration(hours)*time.Hour)
	if err != nil {
		writeError(c, h.logger, err, "failed to load history")
		return
	}

	temperature := make([]historyPoint, 0, len(samples))
	humidity := make([]historyPoint, 0, len(samples))
	light := make([]historyPoint, 0, len(samples))
	for _, sm := range samples {
		if sm.Temperature != nil {
			temperature = append(temperature, historyPoint{Time: sm.RecordedAt, Value: *sm.Temperature})
		}
		if sm.Humidity != nil {
			humidity = append(humidity, historyPoint{Time: sm.RecordedAt, Value: *sm.Humidity})
		}
		if sm.Light != nil {
			light = append(light, historyPoint{Time: sm.RecordedAt, Value: *sm.Light})
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"temperature": temperature,
		"humidity":    humidity,
		"light":       light,
	})
}

// Live handles GET /api/modules/:id/live, a websocket pushing the
// module's latest sample every few seconds until the client goes away.
// Owner only.
func (h *TelemetryHandler) Live(c *gin.Context) {
	moduleID, ok := parseModuleID(c)
	if !ok {
		return
	}
	userID := middleware.GetUserID(c)

	module, err := h.modules.GetByID(c.Request.Context(), moduleID)
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
		c.JSON(http.StatusForbidden, gin.H{"error": "module is not owned by you"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// Reader goroutine: we never expect client messages, but reading is
	// what surfaces the close frame.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(liveInterval)
	defer ticker.Stop()

	send := func() bool {
		sample, err := h.telemetry.Latest(c.Request.Context(), moduleID)
		if err != nil {
			h.logger.Warn("failed to load latest sample", zap.Int64("module_id", moduleID), zap.Error(err))
			return true
		}
		if sample == nil {
			sample = &models.TelemetrySample{ModuleID: moduleID}
		}
		conn.SetWriteDeadline(time.Now().Add(liveWriteLimit))
		return conn.WriteJSON(sample) == nil
	}

	if !send() {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}
