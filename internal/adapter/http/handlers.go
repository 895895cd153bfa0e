package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bujia-iot/vmc-gateway/internal/app/service"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/vmc-gateway/pkg/errors"
)

// Handlers 出货控制API处理器
// 机柜UI层通过这些接口驱动核心，除此之外不暴露任何入口
type Handlers struct {
	coordinator *service.Coordinator
	timeout     time.Duration
}

// NewHandlers 创建API处理器
func NewHandlers(coordinator *service.Coordinator) *Handlers {
	timeoutSeconds := config.GetConfig().HTTPAPIServer.TimeoutSeconds
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &Handlers{
		coordinator: coordinator,
		timeout:     time.Duration(timeoutSeconds) * time.Second,
	}
}

// RegisterRoutes 注册API路由
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")
	{
		v1.POST("/dispense", h.Dispense)
		v1.GET("/lanes/report", h.LaneReport)
		v1.POST("/lanes/reset", h.ResetLanes)
		v1.GET("/device/id", h.DeviceID)
		v1.POST("/device/clear-fault", h.ClearFault)
		v1.GET("/health", h.Health)
	}
}

// opContext 为单次操作派生带超时的上下文
func (h *Handlers) opContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// statusForError 参数校验类错误属于调用方问题，返回400；其余返回500
func statusForError(err error) int {
	if errors.IsType(err, errors.TypeValidation) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// Dispense 执行一次出货
// 指定lane时在该货道出货，lane为0时自动选道（含备用货道回退）
// 出货失败不是HTTP错误：结果永远以200返回，调用方看result.success
func (h *Handlers) Dispense(c *gin.Context) {
	var req DispenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "请求参数错误: " + err.Error()})
		return
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	if req.Lane > 0 {
		result := h.coordinator.Dispense(ctx, byte(req.Lane))
		c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
		return
	}
	result := h.coordinator.DispenseNext(ctx)
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}

// LaneReport 获取货道运行快照
func (h *Handlers) LaneReport(c *gin.Context) {
	ctx, cancel := h.opContext(c)
	defer cancel()

	report, err := h.coordinator.GetLaneReport(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": report})
}

// ResetLanes 维护重置：指定货道或全部货道
func (h *Handlers) ResetLanes(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "请求参数错误: " + err.Error()})
		return
	}

	ctx, cancel := h.opContext(c)
	defer cancel()

	var err error
	if req.Lane > 0 {
		err = h.coordinator.ResetLane(ctx, byte(req.Lane))
	} else {
		err = h.coordinator.ResetAllLanes(ctx)
	}
	if err != nil {
		c.JSON(statusForError(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeviceID 查询控制器设备标识
func (h *Handlers) DeviceID(c *gin.Context) {
	ctx, cancel := h.opContext(c)
	defer cancel()

	id, err := h.coordinator.GetDeviceID(ctx)
	if err != nil {
		c.JSON(statusForError(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"device_id": id}})
}

// ClearFault 下发清除故障命令
func (h *Handlers) ClearFault(c *gin.Context) {
	ctx, cancel := h.opContext(c)
	defer cancel()

	if err := h.coordinator.RemoveFault(ctx); err != nil {
		c.JSON(statusForError(err), ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Health 健康检查
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
}
