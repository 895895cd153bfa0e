package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/bujia-iot/vmc-gateway/internal/app/dto"
)

// LaneStore 货道状态的持久化抽象
// 按货道号作键，单键更新具备原子性；调用方约定先写货道记录、
// 后写当前货道指针，崩溃时指针仍指向一份完整的旧值
type LaneStore interface {
	// GetLane 读取货道记录，不存在时返回(nil, nil)
	GetLane(ctx context.Context, lane byte) (*dto.LaneInfo, error)

	// PutLane 整体写入一条货道记录
	PutLane(ctx context.Context, info *dto.LaneInfo) error

	// ListLanes 返回所有已持久化的货道记录
	ListLanes(ctx context.Context) ([]dto.LaneInfo, error)

	// GetCurrentLane 读取当前货道指针，未设置时第二个返回值为false
	GetCurrentLane(ctx context.Context) (byte, bool, error)

	// SetCurrentLane 写入当前货道指针
	SetCurrentLane(ctx context.Context, lane byte) error

	// GetTotalDispenses 读取累计出货计数
	GetTotalDispenses(ctx context.Context) (int64, error)

	// IncrTotalDispenses 累计出货计数加一并返回新值
	IncrTotalDispenses(ctx context.Context) (int64, error)

	// DeleteLane 删除单条货道记录（维护操作）
	DeleteLane(ctx context.Context, lane byte) error

	// DeleteAllLanes 删除全部货道记录（维护操作）
	DeleteAllLanes(ctx context.Context) error
}

// Redis键名约定
const (
	laneKeyPrefix   = "vmc:lane:"
	currentLaneKey  = "vmc:lane:current"
	totalCounterKey = "vmc:dispense:total"
)

// 货道哈希字段名
const (
	fieldStatus    = "status"
	fieldFailures  = "consecutive_failures"
	fieldSuccesses = "lifetime_successes"
)

// RedisLaneStore 基于Redis哈希的LaneStore实现
// 每个货道一个哈希键，HSet对单键是原子的
type RedisLaneStore struct {
	client *redis.Client
}

// NewRedisLaneStore 创建Redis货道存储
func NewRedisLaneStore(client *redis.Client) *RedisLaneStore {
	return &RedisLaneStore{client: client}
}

func laneKey(lane byte) string {
	return laneKeyPrefix + strconv.Itoa(int(lane))
}

// GetLane 读取货道记录
func (s *RedisLaneStore) GetLane(ctx context.Context, lane byte) (*dto.LaneInfo, error) {
	values, err := s.client.HGetAll(ctx, laneKey(lane)).Result()
	if err != nil {
		return nil, fmt.Errorf("读取货道 %d 失败: %w", lane, err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	failures, _ := strconv.Atoi(values[fieldFailures])
	successes, _ := strconv.ParseInt(values[fieldSuccesses], 10, 64)
	return &dto.LaneInfo{
		Lane:                lane,
		Status:              dto.LaneStatus(values[fieldStatus]),
		ConsecutiveFailures: failures,
		LifetimeSuccesses:   successes,
	}, nil
}

// PutLane 整体写入货道记录
func (s *RedisLaneStore) PutLane(ctx context.Context, info *dto.LaneInfo) error {
	err := s.client.HSet(ctx, laneKey(info.Lane),
		fieldStatus, string(info.Status),
		fieldFailures, info.ConsecutiveFailures,
		fieldSuccesses, info.LifetimeSuccesses,
	).Err()
	if err != nil {
		return fmt.Errorf("写入货道 %d 失败: %w", info.Lane, err)
	}
	return nil
}

// ListLanes 扫描全部货道键
func (s *RedisLaneStore) ListLanes(ctx context.Context) ([]dto.LaneInfo, error) {
	var lanes []dto.LaneInfo
	iter := s.client.Scan(ctx, 0, laneKeyPrefix+"[0-9]*", 0).Iterator()
	for iter.Next(ctx) {
		n, err := strconv.Atoi(iter.Val()[len(laneKeyPrefix):])
		if err != nil {
			continue
		}
		info, err := s.GetLane(ctx, byte(n))
		if err != nil {
			return nil, err
		}
		if info != nil {
			lanes = append(lanes, *info)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("扫描货道键失败: %w", err)
	}
	return lanes, nil
}

// GetCurrentLane 读取当前货道指针
func (s *RedisLaneStore) GetCurrentLane(ctx context.Context) (byte, bool, error) {
	val, err := s.client.Get(ctx, currentLaneKey).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("读取当前货道失败: %w", err)
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, fmt.Errorf("当前货道值非法: %q", val)
	}
	return byte(n), true, nil
}

// SetCurrentLane 写入当前货道指针
func (s *RedisLaneStore) SetCurrentLane(ctx context.Context, lane byte) error {
	if err := s.client.Set(ctx, currentLaneKey, int(lane), 0).Err(); err != nil {
		return fmt.Errorf("写入当前货道失败: %w", err)
	}
	return nil
}

// GetTotalDispenses 读取累计出货计数
func (s *RedisLaneStore) GetTotalDispenses(ctx context.Context) (int64, error) {
	val, err := s.client.Get(ctx, totalCounterKey).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("读取出货计数失败: %w", err)
	}
	return strconv.ParseInt(val, 10, 64)
}

// IncrTotalDispenses 累计出货计数加一
func (s *RedisLaneStore) IncrTotalDispenses(ctx context.Context) (int64, error) {
	n, err := s.client.Incr(ctx, totalCounterKey).Result()
	if err != nil {
		return 0, fmt.Errorf("累加出货计数失败: %w", err)
	}
	return n, nil
}

// DeleteLane 删除单条货道记录
func (s *RedisLaneStore) DeleteLane(ctx context.Context, lane byte) error {
	return s.client.Del(ctx, laneKey(lane)).Err()
}

// DeleteAllLanes 删除全部货道记录
func (s *RedisLaneStore) DeleteAllLanes(ctx context.Context) error {
	lanes, err := s.ListLanes(ctx)
	if err != nil {
		return err
	}
	for _, info := range lanes {
		if err := s.DeleteLane(ctx, info.Lane); err != nil {
			return err
		}
	}
	return nil
}
