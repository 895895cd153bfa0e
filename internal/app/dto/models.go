package dto

import (
	"github.com/bujia-iot/vmc-gateway/pkg/errors"
)

// LaneStatus 货道状态
type LaneStatus string

// 货道状态常量
const (
	LaneActive   LaneStatus = "active"   // 正常可用
	LaneEmpty    LaneStatus = "empty"    // 缺货（光眼类故障一次即判定，不会自愈）
	LaneFailed   LaneStatus = "failed"   // 连续故障达到阈值后停用
	LaneDisabled LaneStatus = "disabled" // 运维手动停用
)

// LaneInfo 单个货道的健康信息，按货道号持久化
type LaneInfo struct {
	Lane                byte       `json:"lane"`
	Status              LaneStatus `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LifetimeSuccesses   int64      `json:"lifetime_successes"`
}

// Usable 货道当前是否可参与出货调度
func (l *LaneInfo) Usable(failureThreshold int) bool {
	return l.Status == LaneActive && l.ConsecutiveFailures < failureThreshold
}

// LaneStatusReport 货道运行快照
type LaneStatusReport struct {
	CurrentLane    byte       `json:"current_lane"`
	TotalDispenses int64      `json:"total_dispenses"`
	Lanes          []LaneInfo `json:"lanes"`
	UsableLanes    int        `json:"usable_lanes"`
}

// DispenseResult 单次出货的最终结果
// 每次Dispense调用恰好产生一个，返回后不再修改
type DispenseResult struct {
	OperationID  string           `json:"operation_id"`
	Success      bool             `json:"success"`
	Lane         byte             `json:"lane"`
	ErrorType    errors.ErrorType `json:"error_type,omitempty"`
	ErrorCode    byte             `json:"error_code,omitempty"` // 控制器故障码，0表示无
	ErrorMessage string           `json:"error_message,omitempty"`
	ElapsedMs    int64            `json:"elapsed_ms"`
}

// Failed 判断结果是否为失败
func (r *DispenseResult) Failed() bool {
	return !r.Success
}
