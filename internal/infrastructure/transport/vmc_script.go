package transport

import (
	"sync"

	"github.com/bujia-iot/vmc-gateway/internal/domain/vmc_protocol"
	"github.com/bujia-iot/vmc-gateway/pkg/constants"
)

// VMCScript 模拟一台健康出货机的协议脚本
// 出货命令立即回显，随后的若干次状态查询返回进行中，再返回成功；
// 用于开发模式下跑通完整出货流程
type VMCScript struct {
	mu sync.Mutex

	// DeviceID 设备标识文本，编码时截断/NUL填充到15字节
	DeviceID string

	// SettleQueries 出货后需要多少次状态查询才到达终态
	SettleQueries int

	// FaultLanes 指定货道的终态故障码（模拟坏货道）
	FaultLanes map[byte]byte

	pending map[byte]int // 货道 → 剩余的进行中查询次数
}

// NewVMCScript 创建健康出货机脚本
func NewVMCScript(deviceID string, settleQueries int) *VMCScript {
	return &VMCScript{
		DeviceID:      deviceID,
		SettleQueries: settleQueries,
		FaultLanes:    make(map[byte]byte),
		pending:       make(map[byte]int),
	}
}

// Handle 处理一段上位机发来的字节，返回控制器响应块
// 解码失败的输入直接丢弃，与真实固件行为一致
func (s *VMCScript) Handle(request []byte) [][]byte {
	frame, ok := vmc_protocol.Decode(request)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch frame.Command {
	case constants.CmdGetDeviceID:
		return [][]byte{s.respond(constants.CmdGetDeviceID, s.deviceIDBytes())}

	case constants.CmdDelivery:
		if len(frame.Data) != 2 {
			return nil
		}
		lane := frame.Data[0]
		s.pending[lane] = s.SettleQueries
		// 回显 [货道, 数量]
		return [][]byte{s.respond(constants.CmdDelivery, frame.Data)}

	case constants.CmdQueryStatus:
		if len(frame.Data) != 2 {
			return nil
		}
		lane := frame.Data[0]
		if s.pending[lane] > 0 {
			s.pending[lane]--
			return [][]byte{s.respond(constants.CmdQueryStatus, []byte{constants.StatusInProgress})}
		}
		if code, bad := s.FaultLanes[lane]; bad {
			return [][]byte{s.respond(constants.CmdQueryStatus, []byte{code})}
		}
		return [][]byte{s.respond(constants.CmdQueryStatus, []byte{constants.StatusSuccess})}

	case constants.CmdRemoveFault:
		return [][]byte{s.respond(constants.CmdRemoveFault, []byte{constants.RemoveFaultOK})}
	}

	return nil
}

// respond 构建一个控制器方向的响应帧
func (s *VMCScript) respond(command byte, data []byte) []byte {
	frame := &vmc_protocol.Frame{
		Header:  constants.HeaderVMCToApp,
		Command: command,
		Data:    data,
	}
	return frame.Encode()
}

// deviceIDBytes 设备标识文本定长编码（15字节，NUL填充）
func (s *VMCScript) deviceIDBytes() []byte {
	buf := make([]byte, constants.DeviceIDTextLen)
	copy(buf, s.DeviceID)
	return buf
}
