package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/verdantio/greenhouse-backend/internal/repository"
	"go.uber.org/zap"
)

// DeviceHandler serves the endpoints the modules themselves call. There
// is no user session on these routes; a device identifies itself by MAC
// (and, once connected, by the module id it was handed back).
type DeviceHandler struct {
	modules   repository.ModuleRepository
	telemetry repository.TelemetryRepository
	logger    *zap.Logger
}

func NewDeviceHandler(modules repository.ModuleRepository, telemetry repository.TelemetryRepository, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{modules: modules, telemetry: telemetry, logger: logger}
}

type connectRequest struct {
	MACAddress string `json:"mac_address" binding:"required"`
	IPAddress  string `json:"ip_address" binding:"required"`
}

// Connect handles POST /api/modules/connect. First contact registers the
// module unclaimed and inactive; reconnects refresh the reported IP.
func (h *DeviceHandler) Connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	module, existed, err := h.modules.Connect(c.Request.Context(), req.MACAddress, req.IPAddress)
	if err != nil {
		h.logger.Error("failed to connect module", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to connect module"})
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"module_id": module.ID,
		"is_active": module.IsActive,
		"exists":    existed,
	})
}

// Status handles GET /api/modules/status with the X-Module-MAC header.
func (h *DeviceHandler) Status(c *gin.Context) {
	mac := c.GetHeader("X-Module-MAC")
	if mac == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing X-Module-MAC header"})
		return
	}

	module, err := h.modules.GetByMAC(c.Request.Context(), mac)
	if err != nil {
		h.logger.Error("failed to get module by mac", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get module"})
		return
	}
	if module == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "module not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"module_id":  module.ID,
		"is_active":  module.IsActive,
		"is_claimed": module.IsClaimed(),
	})
}

type sensorValuesRequest struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Light       *float64 `json:"light"`
}

// SensorValues handles PUT /api/modules/:id/sensor-values, the device
// reporting its readings. Updates the module's last_* values and appends
// a history sample in one transaction.
func (h *DeviceHandler) SensorValues(c *gin.Context) {
	moduleID, ok := parseModuleID(c)
	if !ok {
		return
	}

	var req sensorValuesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	module, err := h.telemetry.Record(c.Request.Context(), moduleID, req.Temperature, req.Humidity, req.Light)
	if err != nil {
		writeError(c, h.logger, err, "failed to record sensor values")
		return
	}
	c.JSON(http.StatusOK, module)
}

type adjustRequest struct {
	// Capitalized keys are the device firmware's wire contract.
	Temperature *float64 `json:"Temperature" binding:"required"`
	Humidity    *float64 `json:"Humidity" binding:"required"`
	Light       *float64 `json:"Light" binding:"required"`
}

// Adjust handles POST /api/adjust: the device submits current readings
// and gets back ON/OFF actuation decisions per metric. A metric without
// a configured target is always OFF.
func (h *DeviceHandler) Adjust(c *gin.Context) {
	mac := c.GetHeader("X-Module-MAC")
	idHeader := c.GetHeader("X-Module-ID")
	if mac == "" || idHeader == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing device identity headers"})
		return
	}
	moduleID, err := strconv.ParseInt(idHeader, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid X-Module-ID header"})
		return
	}

	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	module, err := h.modules.GetByMAC(c.Request.Context(), mac)
	if err != nil {
		h.logger.Error("failed to get module by mac", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get module"})
		return
	}
	if module == nil || module.ID != moduleID {
		c.JSON(http.StatusForbidden, gin.H{"error": "module not found or identity mismatch"})
		return
	}

	onOff := func(target, reading *float64) string {
		if target != nil && reading != nil && *reading < *target {
			return "ON"
		}
		return "OFF"
	}
	c.JSON(http.StatusOK, gin.H{
		"Temperature": onOff(module.TargetTemperature, req.Temperature),
		"Humidity":    onOff(module.TargetHumidity, req.Humidity),
		"Light":       onOff(module.TargetLighting, req.Light),
	})
}
