package ports

import (
	"time"
)

// 串口参数默认值
// 真实部署中波特率之外的字段由硬件写死，仅作信息性配置
const (
	DefaultBaudRate    = 9600
	DefaultDataBits    = 8
	DefaultStopBits    = 1
	DefaultParity      = "none"
	DefaultFlowCtrl    = "none"
	DefaultWarmupMs    = 800
	ReceivePollSliceMs = 10 // Receive内部轮询步长
)

// TransportConfig 串口链路配置
type TransportConfig struct {
	PortPath    string `mapstructure:"portPath"`    // 设备路径，留空时自动枚举
	BaudRate    int    `mapstructure:"baudRate"`    // 波特率
	DataBits    int    `mapstructure:"dataBits"`    // 数据位（硬件固定为8）
	StopBits    int    `mapstructure:"stopBits"`    // 停止位（硬件固定为1）
	Parity      string `mapstructure:"parity"`      // 校验位: none/odd/even（硬件固定为none）
	FlowControl string `mapstructure:"flowControl"` // 流控: none/hardware
	WarmupMs    int    `mapstructure:"warmupMs"`    // 打开串口后的强制预热等待
}

// DefaultTransportConfig 返回硬件默认链路配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		BaudRate:    DefaultBaudRate,
		DataBits:    DefaultDataBits,
		StopBits:    DefaultStopBits,
		Parity:      DefaultParity,
		FlowControl: DefaultFlowCtrl,
		WarmupMs:    DefaultWarmupMs,
	}
}

// Transport 串口链路能力接口
// 模拟后端与真实串口后端实现同一接口，由启动配置选择
type Transport interface {
	// Connect 按配置打开链路，失败返回false（权限、设备不存在等）
	Connect(cfg TransportConfig) bool

	// Disconnect 关闭链路并释放资源，幂等
	Disconnect()

	// IsConnected 链路当前是否可用
	IsConnected() bool

	// Send 写出一段字节，链路未打开或写失败返回false
	Send(data []byte) bool

	// Receive 在timeout内以小步长轮询等待数据
	// 返回首个到达的数据块而非重组后的完整帧；本硬件实际按整帧吐出，
	// 但调用方仍须容忍半包
	Receive(timeout time.Duration) []byte

	// Chunks 持续接收的数据块通道
	// 断开或链路错误时关闭；只能通过重连重新获得
	Chunks() <-chan []byte

	// ClearBuffers 丢弃链路两侧残留的缓冲数据
	ClearBuffers()
}

// StatusNotifier 事件通知式后端的可选扩展能力
// 部分控制器固件在出货结束时主动上报状态帧而非等待轮询；
// 实现该接口的后端由编排器桥接为同步结果契约
type StatusNotifier interface {
	// SubscribeStatus 订阅控制器主动上报的状态帧（已解码前的原始字节）
	// 返回取消订阅函数；同一订阅可能收到多次通知，去重由调用方负责
	SubscribeStatus(fn func(raw []byte)) (cancel func())
}
