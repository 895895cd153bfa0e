package service

import (
	"context"
	"testing"

	"github.com/bujia-iot/vmc-gateway/internal/app/dto"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/storage"
	"github.com/bujia-iot/vmc-gateway/pkg/constants"
)

func testLanesConfig() config.LanesConfig {
	return config.LanesConfig{
		LoadBalanceThreshold: 10,
		FailureThreshold:     3,
		StartLane:            1,
	}
}

func newTestLaneManager(t *testing.T) (*LaneManager, *storage.MemoryLaneStore) {
	t.Helper()
	store := storage.NewMemoryLaneStore()
	m, err := NewLaneManager(store, testLanesConfig())
	if err != nil {
		t.Fatal(err)
	}
	return m, store
}

// TestGetNextLaneKeepsCurrent 当前货道健康且均衡计数未触发时保持不变
func TestGetNextLaneKeepsCurrent(t *testing.T) {
	m, _ := newTestLaneManager(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		lane, err := m.GetNextLane(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if lane != 1 {
			t.Fatalf("第 %d 次选道返回 %d，期望保持 1", i, lane)
		}
	}
}

// TestLoadBalanceRotation 同一货道连续成功N次后主动轮换
func TestLoadBalanceRotation(t *testing.T) {
	m, _ := newTestLaneManager(t)
	ctx := context.Background()
	threshold := testLanesConfig().LoadBalanceThreshold

	for i := 0; i < threshold-1; i++ {
		if err := m.RecordSuccess(ctx, 1, 1200); err != nil {
			t.Fatal(err)
		}
		lane, err := m.GetNextLane(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if lane != 1 {
			t.Fatalf("%d 次成功后就轮换了（阈值 %d）", i+1, threshold)
		}
	}

	if err := m.RecordSuccess(ctx, 1, 1200); err != nil {
		t.Fatal(err)
	}
	lane, err := m.GetNextLane(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if lane == 1 {
		t.Fatalf("达到阈值 %d 后仍未轮换", threshold)
	}
	if !constants.IsValidLane(lane) {
		t.Fatalf("轮换到非法货道 %d", lane)
	}
}

// TestEmptyFaultDisablesImmediately 缺货类故障一次即停用货道
func TestEmptyFaultDisablesImmediately(t *testing.T) {
	m, store := newTestLaneManager(t)
	ctx := context.Background()

	if err := m.RecordFailure(ctx, 1, constants.StatusOpticalFault, "optical sensor fault"); err != nil {
		t.Fatal(err)
	}

	info, err := store.GetLane(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if info.Status != dto.LaneEmpty {
		t.Fatalf("状态 %s，期望 empty", info.Status)
	}

	lane, err := m.GetNextLane(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if lane == 1 {
		t.Fatal("缺货货道未被跳过")
	}
}

// TestGenericFaultThreshold 一般故障达到阈值才停用，两次不够
func TestGenericFaultThreshold(t *testing.T) {
	m, store := newTestLaneManager(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := m.RecordFailure(ctx, 1, constants.StatusMotorFault, "motor fault"); err != nil {
			t.Fatal(err)
		}
	}
	info, _ := store.GetLane(ctx, 1)
	if info.Status != dto.LaneActive {
		t.Fatalf("两次故障后状态 %s，期望仍为 active", info.Status)
	}

	if err := m.RecordFailure(ctx, 1, constants.StatusMotorFault, "motor fault"); err != nil {
		t.Fatal(err)
	}
	info, _ = store.GetLane(ctx, 1)
	if info.Status != dto.LaneFailed {
		t.Fatalf("三次故障后状态 %s，期望 failed", info.Status)
	}

	lane, err := m.GetNextLane(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if lane == 1 {
		t.Fatal("停用货道未被跳过")
	}
}

// TestSuccessClearsFailureStreak 成功清零连续失败计数
func TestSuccessClearsFailureStreak(t *testing.T) {
	m, store := newTestLaneManager(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = m.RecordFailure(ctx, 1, constants.StatusMotorFault, "motor fault")
	}
	if err := m.RecordSuccess(ctx, 1, 900); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		_ = m.RecordFailure(ctx, 1, constants.StatusMotorFault, "motor fault")
	}

	info, _ := store.GetLane(ctx, 1)
	if info.Status != dto.LaneActive {
		t.Fatalf("成功打断后两次故障仍停用了货道: %s", info.Status)
	}
	if info.ConsecutiveFailures != 2 {
		t.Fatalf("连续失败计数 %d，期望 2", info.ConsecutiveFailures)
	}
}

// TestGetFallbackLanes 备用货道不含排除项、按失败次数升序、至多3个
func TestGetFallbackLanes(t *testing.T) {
	m, _ := newTestLaneManager(t)
	ctx := context.Background()

	// 制造不同的失败档位（都低于停用阈值）
	_ = m.RecordFailure(ctx, 2, constants.StatusMotorFault, "motor fault")
	_ = m.RecordFailure(ctx, 2, constants.StatusMotorFault, "motor fault")
	_ = m.RecordFailure(ctx, 3, constants.StatusMotorFault, "motor fault")

	fallbacks, err := m.GetFallbackLanes(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(fallbacks) == 0 || len(fallbacks) > 3 {
		t.Fatalf("备用货道数量 %d", len(fallbacks))
	}
	for _, lane := range fallbacks {
		if lane == 1 {
			t.Fatal("备用货道包含了被排除的货道")
		}
	}

	// 失败次数须单调不减
	last := -1
	for _, lane := range fallbacks {
		info, _ := m.store.GetLane(ctx, lane)
		failures := 0
		if info != nil {
			failures = info.ConsecutiveFailures
		}
		if failures < last {
			t.Fatalf("备用货道未按失败次数升序: %v", fallbacks)
		}
		last = failures
	}
}

// TestExhaustedReturnsOriginal 全部货道不可用时返回原货道
func TestExhaustedReturnsOriginal(t *testing.T) {
	m, _ := newTestLaneManager(t)
	ctx := context.Background()

	for _, lane := range constants.AllLanes() {
		_ = m.RecordFailure(ctx, lane, constants.StatusOpticalFault, "optical sensor fault")
	}

	lane, err := m.GetNextLane(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if lane != 1 {
		t.Fatalf("耗尽时返回 %d，期望原货道 1", lane)
	}
}

// TestCurrentLaneSurvivesRestart 当前货道指针跨重启恢复
func TestCurrentLaneSurvivesRestart(t *testing.T) {
	store := storage.NewMemoryLaneStore()
	m, err := NewLaneManager(store, testLanesConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	// 停用1号货道迫使指针移动
	_ = m.RecordFailure(ctx, 1, constants.StatusOpticalFault, "optical sensor fault")
	moved, err := m.GetNextLane(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if moved == 1 {
		t.Fatal("指针未移动")
	}

	// 用同一存储重建管理器，模拟进程重启
	restarted, err := NewLaneManager(store, testLanesConfig())
	if err != nil {
		t.Fatal(err)
	}
	lane, err := restarted.GetNextLane(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if lane != moved {
		t.Fatalf("重启后选道 %d，期望恢复为 %d", lane, moved)
	}
}

// TestResetLane 维护重置恢复Active并清零失败计数
func TestResetLane(t *testing.T) {
	m, store := newTestLaneManager(t)
	ctx := context.Background()

	_ = m.RecordFailure(ctx, 1, constants.StatusOpticalFault, "optical sensor fault")
	if err := m.ResetLane(ctx, 1); err != nil {
		t.Fatal(err)
	}

	info, _ := store.GetLane(ctx, 1)
	if info.Status != dto.LaneActive || info.ConsecutiveFailures != 0 {
		t.Fatalf("重置后状态异常: %+v", info)
	}
}

// TestLaneStatusReport 快照覆盖48个货道并统计可用数
func TestLaneStatusReport(t *testing.T) {
	m, _ := newTestLaneManager(t)
	ctx := context.Background()

	_ = m.RecordSuccess(ctx, 1, 1000)
	_ = m.RecordFailure(ctx, 2, constants.StatusOpticalFault, "optical sensor fault")

	report, err := m.GetLaneStatusReport(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Lanes) != constants.LaneTotalCount {
		t.Fatalf("快照货道数 %d，期望 %d", len(report.Lanes), constants.LaneTotalCount)
	}
	if report.UsableLanes != constants.LaneTotalCount-1 {
		t.Fatalf("可用货道数 %d，期望 %d", report.UsableLanes, constants.LaneTotalCount-1)
	}
	if report.TotalDispenses != 1 {
		t.Fatalf("累计出货 %d，期望 1", report.TotalDispenses)
	}
	if report.CurrentLane != 1 {
		t.Fatalf("当前货道 %d，期望 1", report.CurrentLane)
	}
}
