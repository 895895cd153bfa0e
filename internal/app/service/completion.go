package service

import (
	"context"
	"sync"
)

// oneShot 单次完成原语
// 桥接事件通知式后端：首个终态通知恢复等待方，之后的任何通知被忽略，
// 防重复恢复由sync.Once保证
type oneShot struct {
	once sync.Once
	done chan oneShotResult
}

// oneShotResult 一次性完成的载荷
type oneShotResult struct {
	success   bool
	errorCode byte
}

// newOneShot 创建单次完成原语
func newOneShot() *oneShot {
	return &oneShot{
		done: make(chan oneShotResult, 1),
	}
}

// resolve 投递完成结果，仅首次调用生效
func (o *oneShot) resolve(success bool, errorCode byte) {
	o.once.Do(func() {
		o.done <- oneShotResult{success: success, errorCode: errorCode}
	})
}

// wait 等待完成、取消或超时
// 返回值: 结果, 是否在deadline内完成
func (o *oneShot) wait(ctx context.Context) (oneShotResult, bool) {
	select {
	case r := <-o.done:
		return r, true
	case <-ctx.Done():
		return oneShotResult{}, false
	}
}
