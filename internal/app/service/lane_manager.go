package service

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/vmc-gateway/internal/app/dto"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/storage"
	"github.com/bujia-iot/vmc-gateway/pkg/constants"
	"github.com/bujia-iot/vmc-gateway/pkg/errors"
)

// 可返回的备用货道数量上限
const maxFallbackLanes = 3

// LaneManager 货道调度与健康管理
// 按持久化的每货道健康状态选道，故障降级、磨损均衡轮换都在这里决策；
// 出货结果由调用方通过RecordSuccess/RecordFailure回写
type LaneManager struct {
	mu    sync.Mutex
	store storage.LaneStore
	cfg   config.LanesConfig

	currentLane byte
	streakLane  byte // 连续成功计数所属的货道
	streak      int  // 同一货道的连续成功次数（进程内，不持久化）
}

// NewLaneManager 创建货道管理器并恢复持久化的当前货道指针
func NewLaneManager(store storage.LaneStore, cfg config.LanesConfig) (*LaneManager, error) {
	if cfg.LoadBalanceThreshold <= 0 {
		cfg.LoadBalanceThreshold = 10
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if !constants.IsValidLane(byte(cfg.StartLane)) {
		cfg.StartLane = 1
	}

	m := &LaneManager{
		store: store,
		cfg:   cfg,
	}

	ctx := context.Background()
	lane, found, err := store.GetCurrentLane(ctx)
	if err != nil {
		return nil, err
	}
	if found && constants.IsValidLane(lane) {
		m.currentLane = lane
	} else {
		m.currentLane = byte(cfg.StartLane)
	}
	m.streakLane = m.currentLane

	logger.WithField("current_lane", m.currentLane).Info("货道管理器已就绪")
	return m, nil
}

// loadOrInit 读取货道记录，首次引用时惰性创建为Active
func (m *LaneManager) loadOrInit(ctx context.Context, lane byte) (*dto.LaneInfo, error) {
	info, err := m.store.GetLane(ctx, lane)
	if err != nil {
		return nil, err
	}
	if info == nil {
		info = &dto.LaneInfo{
			Lane:   lane,
			Status: dto.LaneActive,
		}
	}
	return info, nil
}

// GetNextLane 返回下一次出货应使用的货道
// 当前货道可用且均衡计数未触发时保持不变；均衡计数触发或当前货道不可用时
// 在地址空间内循环前扫下一个可用货道。全部货道不可用时返回原货道，
// 让调用方得到一次显式失败而不是静默卡死
func (m *LaneManager) GetNextLane(ctx context.Context) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.currentLane
	info, err := m.loadOrInit(ctx, current)
	if err != nil {
		return 0, err
	}

	rotateForBalance := m.streakLane == current && m.streak >= m.cfg.LoadBalanceThreshold
	if info.Usable(m.cfg.FailureThreshold) && !rotateForBalance {
		return current, nil
	}

	// 循环前扫：从下一个地址开始，最多走完整个地址空间
	candidate := constants.NextLane(current)
	for i := 0; i < constants.LaneTotalCount-1; i++ {
		candInfo, err := m.loadOrInit(ctx, candidate)
		if err != nil {
			return 0, err
		}
		if candInfo.Usable(m.cfg.FailureThreshold) {
			if err := m.setCurrentLocked(ctx, candidate); err != nil {
				return 0, err
			}
			logger.WithFields(logrus.Fields{
				"from":        current,
				"to":          candidate,
				"for_balance": rotateForBalance,
			}).Info("切换出货货道")
			return candidate, nil
		}
		candidate = constants.NextLane(candidate)
	}

	// 均衡轮换但没有其他可用货道：继续用当前货道，计数清零避免每次都扫全表
	if info.Usable(m.cfg.FailureThreshold) {
		m.streak = 0
		return current, nil
	}

	logger.WithField("lane", current).Warn("没有可用货道，返回原货道")
	return current, nil
}

// setCurrentLocked 更新当前货道指针并持久化，调用方须持锁
// 先落货道记录（由record*路径完成）后落指针：中途崩溃时指针
// 仍指向一份完整的旧值
func (m *LaneManager) setCurrentLocked(ctx context.Context, lane byte) error {
	if err := m.store.SetCurrentLane(ctx, lane); err != nil {
		return err
	}
	m.currentLane = lane
	m.streakLane = lane
	m.streak = 0
	return nil
}

// GetFallbackLanes 返回除excludeLane外至多3个备用货道
// 仅含当前可用的货道，按连续失败次数升序、同值按货道号升序
func (m *LaneManager) GetFallbackLanes(ctx context.Context, excludeLane byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type candidate struct {
		lane     byte
		failures int
	}
	var candidates []candidate
	for _, lane := range constants.AllLanes() {
		if lane == excludeLane {
			continue
		}
		info, err := m.loadOrInit(ctx, lane)
		if err != nil {
			return nil, err
		}
		if !info.Usable(m.cfg.FailureThreshold) {
			continue
		}
		candidates = append(candidates, candidate{lane: lane, failures: info.ConsecutiveFailures})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].failures != candidates[j].failures {
			return candidates[i].failures < candidates[j].failures
		}
		return candidates[i].lane < candidates[j].lane
	})

	n := len(candidates)
	if n > maxFallbackLanes {
		n = maxFallbackLanes
	}
	lanes := make([]byte, 0, n)
	for _, c := range candidates[:n] {
		lanes = append(lanes, c.lane)
	}
	return lanes, nil
}

// RecordSuccess 记录一次出货成功
// 清零连续失败、累加成功数与全局出货计数，并推进均衡计数
func (m *LaneManager) RecordSuccess(ctx context.Context, lane byte, durationMs int64) error {
	if !constants.IsValidLane(lane) {
		return errors.Newf(errors.ErrInvalidLane, "货道号 %d 不在合法地址空间内", lane)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := m.loadOrInit(ctx, lane)
	if err != nil {
		return err
	}
	info.ConsecutiveFailures = 0
	info.LifetimeSuccesses++
	info.Status = dto.LaneActive

	if err := m.store.PutLane(ctx, info); err != nil {
		return err
	}
	if _, err := m.store.IncrTotalDispenses(ctx); err != nil {
		return err
	}

	if m.streakLane == lane {
		m.streak++
	} else {
		m.streakLane = lane
		m.streak = 1
	}

	logger.WithFields(logrus.Fields{
		"lane":        lane,
		"duration_ms": durationMs,
		"streak":      m.streak,
	}).Debug("记录出货成功")
	return nil
}

// RecordFailure 记录一次出货失败
// 缺货类故障（光眼/掉货检测）一次即标记Empty——空货道不会自愈；
// 其他故障类（如电机）达到连续失败阈值才标记Failed，
// 避免瞬时故障过早停用货道
func (m *LaneManager) RecordFailure(ctx context.Context, lane byte, errorCode byte, message string) error {
	if !constants.IsValidLane(lane) {
		return errors.Newf(errors.ErrInvalidLane, "货道号 %d 不在合法地址空间内", lane)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := m.loadOrInit(ctx, lane)
	if err != nil {
		return err
	}
	info.ConsecutiveFailures++

	switch {
	case errorCode == constants.StatusOpticalFault:
		info.Status = dto.LaneEmpty
	case info.ConsecutiveFailures >= m.cfg.FailureThreshold:
		info.Status = dto.LaneFailed
	}

	if err := m.store.PutLane(ctx, info); err != nil {
		return err
	}

	if m.streakLane == lane {
		m.streak = 0
	}

	logger.WithFields(logrus.Fields{
		"lane":       lane,
		"fault_code": errorCode,
		"failures":   info.ConsecutiveFailures,
		"status":     info.Status,
		"message":    message,
	}).Warn("记录出货失败")
	return nil
}

// ResetLane 维护操作：清零失败计数并恢复Active
// 累计成功数是磨损统计，补货不清除
func (m *LaneManager) ResetLane(ctx context.Context, lane byte) error {
	if !constants.IsValidLane(lane) {
		return errors.Newf(errors.ErrInvalidLane, "货道号 %d 不在合法地址空间内", lane)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetLaneLocked(ctx, lane)
}

func (m *LaneManager) resetLaneLocked(ctx context.Context, lane byte) error {
	info, err := m.loadOrInit(ctx, lane)
	if err != nil {
		return err
	}
	info.ConsecutiveFailures = 0
	info.Status = dto.LaneActive
	return m.store.PutLane(ctx, info)
}

// ResetAllLanes 维护操作：重置所有已有记录的货道
func (m *LaneManager) ResetAllLanes(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lanes, err := m.store.ListLanes(ctx)
	if err != nil {
		return err
	}
	for _, info := range lanes {
		if err := m.resetLaneLocked(ctx, info.Lane); err != nil {
			return err
		}
	}
	m.streak = 0
	logger.Info("所有货道已重置")
	return nil
}

// GetLaneStatusReport 返回货道运行快照
// 覆盖全部48个合法货道，未被引用过的按默认Active列出
func (m *LaneManager) GetLaneStatusReport(ctx context.Context) (*dto.LaneStatusReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	total, err := m.store.GetTotalDispenses(ctx)
	if err != nil {
		return nil, err
	}

	report := &dto.LaneStatusReport{
		CurrentLane:    m.currentLane,
		TotalDispenses: total,
		Lanes:          make([]dto.LaneInfo, 0, constants.LaneTotalCount),
	}
	for _, lane := range constants.AllLanes() {
		info, err := m.loadOrInit(ctx, lane)
		if err != nil {
			return nil, err
		}
		report.Lanes = append(report.Lanes, *info)
		if info.Usable(m.cfg.FailureThreshold) {
			report.UsableLanes++
		}
	}
	return report, nil
}
