package transport

import (
	"sync"
	"time"

	"github.com/bujia-iot/vmc-gateway/internal/domain/vmc_protocol"
	"github.com/bujia-iot/vmc-gateway/internal/ports"
	"github.com/bujia-iot/vmc-gateway/pkg/constants"
)

// ScriptFunc 模拟后端的响应脚本
// 输入上位机发出的一段字节，返回控制器将吐出的零个或多个数据块
type ScriptFunc func(request []byte) [][]byte

// SimulatedTransport 模拟串口后端
// 实现与真实后端相同的能力接口，不做任何真实I/O，
// 行为由注入的脚本决定，用于开发模式与测试
type SimulatedTransport struct {
	mu        sync.Mutex
	connected bool
	chunks    chan []byte
	script    ScriptFunc
	sendFail  bool
}

// NewSimulatedTransport 创建模拟后端
func NewSimulatedTransport(script ScriptFunc) *SimulatedTransport {
	return &SimulatedTransport{script: script}
}

// SetSendFailure 让后续Send调用失败（测试故障注入）
func (t *SimulatedTransport) SetSendFailure(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendFail = fail
}

// Connect 打开模拟链路
func (t *SimulatedTransport) Connect(_ ports.TransportConfig) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return true
	}
	t.connected = true
	t.chunks = make(chan []byte, 64)
	return true
}

// Disconnect 关闭模拟链路，幂等
func (t *SimulatedTransport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return
	}
	t.connected = false
	close(t.chunks)
}

// IsConnected 链路是否可用
func (t *SimulatedTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Send 将请求交给脚本，把脚本产出的响应块排入接收队列
func (t *SimulatedTransport) Send(data []byte) bool {
	t.mu.Lock()
	if !t.connected || t.sendFail {
		t.mu.Unlock()
		return false
	}
	script := t.script
	chunks := t.chunks
	t.mu.Unlock()

	if script == nil {
		return true
	}
	for _, resp := range script(data) {
		select {
		case chunks <- resp:
		default:
			// 模拟硬件缓冲溢出：静默丢弃
		}
	}
	return true
}

// Receive 在timeout内等待首个数据块
func (t *SimulatedTransport) Receive(timeout time.Duration) []byte {
	t.mu.Lock()
	chunks := t.chunks
	connected := t.connected
	t.mu.Unlock()

	if !connected {
		return nil
	}
	select {
	case chunk, ok := <-chunks:
		if !ok {
			return nil
		}
		return chunk
	case <-time.After(timeout):
		return nil
	}
}

// Chunks 持续接收通道
func (t *SimulatedTransport) Chunks() <-chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chunks
}

// ClearBuffers 排空接收队列
func (t *SimulatedTransport) ClearBuffers() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return
	}
	for {
		select {
		case <-t.chunks:
		default:
			return
		}
	}
}

// NotifyingSimulatedTransport 带主动上报能力的模拟后端
// 模拟事件通知式固件：出货终态不经接收队列，而是通过订阅回调推送
type NotifyingSimulatedTransport struct {
	SimulatedTransport

	// NotifyDelay 出货命令到终态上报之间的模拟耗时
	NotifyDelay time.Duration

	// NotifyStatus 上报的终态状态码
	NotifyStatus byte

	subMu       sync.Mutex
	subscribers map[int]func([]byte)
	nextSubID   int
}

// NewNotifyingSimulatedTransport 创建主动上报式模拟后端
func NewNotifyingSimulatedTransport(script ScriptFunc) *NotifyingSimulatedTransport {
	return &NotifyingSimulatedTransport{
		SimulatedTransport: SimulatedTransport{script: script},
		NotifyDelay:        50 * time.Millisecond,
		NotifyStatus:       constants.StatusSuccess,
		subscribers:        make(map[int]func([]byte)),
	}
}

// Send 处理请求；出货命令额外调度一次延迟终态上报
func (t *NotifyingSimulatedTransport) Send(data []byte) bool {
	if !t.SimulatedTransport.Send(data) {
		return false
	}
	frame, ok := vmc_protocol.Decode(data)
	if !ok || frame.Command != constants.CmdDelivery {
		return true
	}
	status := t.NotifyStatus
	go func() {
		time.Sleep(t.NotifyDelay)
		report := &vmc_protocol.Frame{
			Header:  constants.HeaderVMCToApp,
			Command: constants.CmdQueryStatus,
			Data:    []byte{status},
		}
		t.PushNotification(report.Encode())
	}()
	return true
}

// SubscribeStatus 订阅主动上报帧，返回取消函数
func (t *NotifyingSimulatedTransport) SubscribeStatus(fn func(raw []byte)) func() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	id := t.nextSubID
	t.nextSubID++
	t.subscribers[id] = fn
	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		delete(t.subscribers, id)
	}
}

// PushNotification 向所有订阅者推送一帧（测试与脚本驱动用）
func (t *NotifyingSimulatedTransport) PushNotification(raw []byte) {
	t.subMu.Lock()
	fns := make([]func([]byte), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		fns = append(fns, fn)
	}
	t.subMu.Unlock()

	for _, fn := range fns {
		fn(raw)
	}
}
