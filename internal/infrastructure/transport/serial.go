package transport

import (
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/vmc-gateway/internal/ports"
)

// 已知USB串口桥芯片的VID，自动枚举时按此过滤
// CH340(1A86) / FTDI(0403) / CP210x(10C4) / PL2303(067B)
var knownBridgeVIDs = map[string]bool{
	"1A86": true,
	"0403": true,
	"10C4": true,
	"067B": true,
}

// SerialTransport 真实串口后端，基于go.bug.st/serial
type SerialTransport struct {
	mu        sync.Mutex
	port      serial.Port
	cfg       ports.TransportConfig
	connected bool
	chunks    chan []byte
	stopRead  chan struct{}
}

// NewSerialTransport 创建串口后端
func NewSerialTransport() *SerialTransport {
	return &SerialTransport{}
}

// Connect 打开并初始化串口
// 顺序: 定位设备 → 打开 → 预热等待 → 清除启动噪声 → 应用串口参数
// 预热等待是控制器的未见于文档的硬件特性：上电后一小段时间内
// 会吐出随机噪声字节，必须等待并清空后才能通信
func (t *SerialTransport) Connect(cfg ports.TransportConfig) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return true
	}

	path := cfg.PortPath
	if path == "" {
		found, err := findBridgePort()
		if err != nil || found == "" {
			logger.WithField("error", err).Error("未找到可用的串口桥设备")
			return false
		}
		path = found
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		Parity:   parseParity(cfg.Parity),
		StopBits: parseStopBits(cfg.StopBits),
	}
	// 流控为none时不设置InitialStatusBits，保持DTR/RTS原状
	// 主动拉低控制线会导致部分批次控制器复位
	if !strings.EqualFold(cfg.FlowControl, ports.DefaultFlowCtrl) {
		logger.Warnf("流控模式 %s 不受本硬件支持，按 none 处理", cfg.FlowControl)
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"port":  path,
			"error": err,
		}).Error("打开串口失败")
		return false
	}

	// 强制预热等待
	if cfg.WarmupMs > 0 {
		time.Sleep(time.Duration(cfg.WarmupMs) * time.Millisecond)
	}

	// 清除启动噪声
	_ = port.ResetInputBuffer()
	_ = port.ResetOutputBuffer()

	t.port = port
	t.cfg = cfg
	t.connected = true
	t.chunks = make(chan []byte, 16)
	t.stopRead = make(chan struct{})
	go t.readLoop(port, t.chunks, t.stopRead)

	logger.WithFields(map[string]interface{}{
		"port": path,
		"baud": cfg.BaudRate,
	}).Info("串口链路已打开")
	return true
}

// findBridgePort 枚举USB串口桥设备并返回第一个匹配的端口
func findBridgePort() (string, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", err
	}
	for _, d := range details {
		if d.IsUSB && knownBridgeVIDs[strings.ToUpper(d.VID)] {
			return d.Name, nil
		}
	}
	return "", nil
}

// parseParity 解析校验位配置
func parseParity(s string) serial.Parity {
	switch strings.ToLower(s) {
	case "odd":
		return serial.OddParity
	case "even":
		return serial.EvenParity
	default:
		return serial.NoParity
	}
}

// parseStopBits 解析停止位配置
func parseStopBits(n int) serial.StopBits {
	if n == 2 {
		return serial.TwoStopBits
	}
	return serial.OneStopBit
}

// readLoop 持续读取串口，按到达的数据块推入chunks通道
// 链路错误或Disconnect时退出并关闭通道
func (t *SerialTransport) readLoop(port serial.Port, chunks chan []byte, stop chan struct{}) {
	defer close(chunks)
	_ = port.SetReadTimeout(time.Duration(ports.ReceivePollSliceMs) * time.Millisecond)
	buf := make([]byte, 512)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			logger.WithField("error", err).Warn("串口读取中断")
			return
		}
		if n == 0 {
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		logger.HexDump("串口收到数据", chunk)

		select {
		case chunks <- chunk:
		case <-stop:
			return
		}
	}
}

// Disconnect 关闭串口，幂等
func (t *SerialTransport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return
	}
	close(t.stopRead)
	_ = t.port.Close()
	t.port = nil
	t.connected = false
	logger.Info("串口链路已关闭")
}

// IsConnected 链路是否可用
func (t *SerialTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Send 写出字节序列
func (t *SerialTransport) Send(data []byte) bool {
	t.mu.Lock()
	port := t.port
	connected := t.connected
	t.mu.Unlock()

	if !connected {
		return false
	}
	logger.HexDump("串口发送数据", data)
	n, err := port.Write(data)
	if err != nil || n != len(data) {
		logger.WithFields(map[string]interface{}{
			"written": n,
			"error":   err,
		}).Error("串口写入失败")
		return false
	}
	return true
}

// Receive 在timeout内等待首个数据块
// 返回的是到达的原始块，不保证是完整帧
func (t *SerialTransport) Receive(timeout time.Duration) []byte {
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

// Chunks 持续接收通道，断开或链路错误时关闭
func (t *SerialTransport) Chunks() <-chan []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.chunks
}

// ClearBuffers 丢弃链路两侧残留数据
func (t *SerialTransport) ClearBuffers() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return
	}
	_ = t.port.ResetInputBuffer()
	_ = t.port.ResetOutputBuffer()
	// 同时排空已搬入内存的块
	for {
		select {
		case <-t.chunks:
		default:
			return
		}
	}
}
