package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/vmc-gateway/internal/app/dto"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/vmc-gateway/pkg/errors"
)

// Coordinator 出货协调器
// 核心对外的唯一入口：选道 → 出货 → 回写结果 → 必要时走备用货道
// 上层（UI等）只依赖这里暴露的四个操作
type Coordinator struct {
	dispenser *DispenserService
	lanes     *LaneManager
}

// NewCoordinator 创建出货协调器
func NewCoordinator(dispenser *DispenserService, lanes *LaneManager) *Coordinator {
	return &Coordinator{
		dispenser: dispenser,
		lanes:     lanes,
	}
}

// Dispense 在指定货道出货并回写结果
func (c *Coordinator) Dispense(ctx context.Context, lane byte) *dto.DispenseResult {
	result := c.dispenser.Dispense(ctx, lane)
	c.RecordOutcome(ctx, lane, result)
	return result
}

// DispenseNext 自动选道出货
// 主货道失败且属于硬件/超时类时，按失败次数升序尝试至多3个备用货道，
// 首个成功即返回；每次尝试的结果都会回写到货道状态
func (c *Coordinator) DispenseNext(ctx context.Context) *dto.DispenseResult {
	lane, err := c.lanes.GetNextLane(ctx)
	if err != nil {
		logger.WithField("error", err).Error("选道失败")
		return &dto.DispenseResult{
			Success:      false,
			ErrorType:    errors.TypeUnknown,
			ErrorMessage: err.Error(),
		}
	}

	result := c.Dispense(ctx, lane)
	if !result.Failed() || !c.shouldFallback(result) {
		return result
	}

	fallbacks, err := c.lanes.GetFallbackLanes(ctx, lane)
	if err != nil {
		logger.WithField("error", err).Error("获取备用货道失败")
		return result
	}

	for _, fb := range fallbacks {
		logger.WithFields(logrus.Fields{
			"failed_lane":   result.Lane,
			"fallback_lane": fb,
		}).Info("主货道出货失败，尝试备用货道")

		result = c.Dispense(ctx, fb)
		if !result.Failed() || !c.shouldFallback(result) {
			return result
		}
	}
	return result
}

// shouldFallback 判断失败结果是否值得换货道重试
// 参数校验失败换道无意义；链路断开换道同样无意义；
// 硬件故障与轮询超时是货道级问题，换道有机会成功
func (c *Coordinator) shouldFallback(result *dto.DispenseResult) bool {
	switch result.ErrorType {
	case errors.TypeHardware, errors.TypeTimeout, errors.TypeUnknown:
		return true
	default:
		return false
	}
}

// RecordOutcome 把一次出货结果回写到货道状态
// 只影响后续选道，绝不改变已经返回给调用方的结果
func (c *Coordinator) RecordOutcome(ctx context.Context, lane byte, result *dto.DispenseResult) {
	var err error
	if result.Success {
		err = c.lanes.RecordSuccess(ctx, lane, result.ElapsedMs)
	} else if result.ErrorType == errors.TypeHardware || result.ErrorType == errors.TypeTimeout || result.ErrorType == errors.TypeUnknown {
		// 校验失败与链路失败不计入货道健康：问题不在货道本身
		err = c.lanes.RecordFailure(ctx, lane, result.ErrorCode, result.ErrorMessage)
	}
	if err != nil {
		logger.WithFields(logrus.Fields{
			"lane":  lane,
			"error": err,
		}).Error("回写出货结果失败")
	}
}

// GetNextLane 暴露选道操作
func (c *Coordinator) GetNextLane(ctx context.Context) (byte, error) {
	return c.lanes.GetNextLane(ctx)
}

// GetLaneReport 暴露货道快照
func (c *Coordinator) GetLaneReport(ctx context.Context) (*dto.LaneStatusReport, error) {
	return c.lanes.GetLaneStatusReport(ctx)
}

// ResetLane 暴露单货道维护重置
func (c *Coordinator) ResetLane(ctx context.Context, lane byte) error {
	return c.lanes.ResetLane(ctx, lane)
}

// ResetAllLanes 暴露全量维护重置
func (c *Coordinator) ResetAllLanes(ctx context.Context) error {
	return c.lanes.ResetAllLanes(ctx)
}

// GetDeviceID 暴露设备标识查询
func (c *Coordinator) GetDeviceID(ctx context.Context) (string, error) {
	return c.dispenser.GetDeviceID(ctx)
}

// RemoveFault 暴露清除故障命令
func (c *Coordinator) RemoveFault(ctx context.Context) error {
	return c.dispenser.RemoveFault(ctx)
}
