package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/bujia-iot/vmc-gateway/internal/app/dto"
)

// MemoryLaneStore 内存版LaneStore，语义与Redis实现一致
// 用于开发模式与单元测试
type MemoryLaneStore struct {
	mu          sync.Mutex
	lanes       map[byte]dto.LaneInfo
	currentLane byte
	currentSet  bool
	total       int64
}

// NewMemoryLaneStore 创建内存货道存储
func NewMemoryLaneStore() *MemoryLaneStore {
	return &MemoryLaneStore{
		lanes: make(map[byte]dto.LaneInfo),
	}
}

// GetLane 读取货道记录
func (s *MemoryLaneStore) GetLane(_ context.Context, lane byte) (*dto.LaneInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.lanes[lane]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// PutLane 整体写入货道记录
func (s *MemoryLaneStore) PutLane(_ context.Context, info *dto.LaneInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lanes[info.Lane] = *info
	return nil
}

// ListLanes 按货道号升序返回全部记录
func (s *MemoryLaneStore) ListLanes(_ context.Context) ([]dto.LaneInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lanes := make([]dto.LaneInfo, 0, len(s.lanes))
	for _, info := range s.lanes {
		lanes = append(lanes, info)
	}
	sort.Slice(lanes, func(i, j int) bool { return lanes[i].Lane < lanes[j].Lane })
	return lanes, nil
}

// GetCurrentLane 读取当前货道指针
func (s *MemoryLaneStore) GetCurrentLane(_ context.Context) (byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLane, s.currentSet, nil
}

// SetCurrentLane 写入当前货道指针
func (s *MemoryLaneStore) SetCurrentLane(_ context.Context, lane byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentLane = lane
	s.currentSet = true
	return nil
}

// GetTotalDispenses 读取累计出货计数
func (s *MemoryLaneStore) GetTotalDispenses(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, nil
}

// IncrTotalDispenses 累计出货计数加一
func (s *MemoryLaneStore) IncrTotalDispenses(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	return s.total, nil
}

// DeleteLane 删除单条货道记录
func (s *MemoryLaneStore) DeleteLane(_ context.Context, lane byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lanes, lane)
	return nil
}

// DeleteAllLanes 删除全部货道记录
func (s *MemoryLaneStore) DeleteAllLanes(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lanes = make(map[byte]dto.LaneInfo)
	return nil
}
