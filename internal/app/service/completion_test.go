package service

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestOneShotResolvesOnce 并发多次投递只有首次生效
func TestOneShotResolvesOnce(t *testing.T) {
	done := newOneShot()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		code := byte(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			done.resolve(code == 0, code)
		}()
	}
	wg.Wait()

	result, completed := done.wait(context.Background())
	if !completed {
		t.Fatal("等待未完成")
	}
	// 16个竞争者中恰好一个胜出；载荷必须自洽
	if result.success != (result.errorCode == 0) {
		t.Fatalf("载荷被混写: %+v", result)
	}
}

// TestOneShotContextCancel 取消让等待方立即返回未完成
func TestOneShotContextCancel(t *testing.T) {
	done := newOneShot()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, completed := done.wait(ctx)
	if completed {
		t.Fatal("未投递却报告完成")
	}
	if time.Since(start) > time.Second {
		t.Fatal("取消后未及时返回")
	}

	// 迟到的投递不应panic，也不影响后续等待结果
	done.resolve(true, 0)
	result, completed := done.wait(context.Background())
	if !completed || !result.success {
		t.Fatalf("迟到投递丢失: %+v completed=%v", result, completed)
	}
}
