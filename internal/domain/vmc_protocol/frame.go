package vmc_protocol

import (
	"github.com/bujia-iot/vmc-gateway/pkg/constants"
)

// Frame 表示一个VMC协议帧
// 线上布局（小端、逐字节）:
//
//	地址(1) | 帧号(1) | 帧头(1) | 命令(1) | 数据长度(1) | 数据(0-255) | 校验和(1)
//
// 地址与帧号为固件写死的固定常量，所有帧相同
type Frame struct {
	Header  byte   // 帧头标识: HeaderAppToVMC 或 HeaderVMCToApp
	Command byte   // 命令字节
	Data    []byte // 数据区内容 (0-255字节)
}

// NewFrame 创建一个上位机发往控制器的协议帧
func NewFrame(command byte, data []byte) *Frame {
	return &Frame{
		Header:  constants.HeaderAppToVMC,
		Command: command,
		Data:    data,
	}
}

// Checksum 计算帧校验和
// 算法: 帧头 + 命令 + 数据长度 + 所有数据字节 求和后取低8位
// 地址、帧号与校验和本身不参与求和
// 这是控制器固件定义的弱加和校验，不是CRC，只能发现单字节级别的破损
func Checksum(header, command, dataLen byte, data []byte) byte {
	sum := uint32(header) + uint32(command) + uint32(dataLen)
	for _, b := range data {
		sum += uint32(b)
	}
	return byte(sum)
}

// Encode 将帧编码为线上字节序列
func (f *Frame) Encode() []byte {
	dataLen := byte(len(f.Data))

	packet := make([]byte, 0, constants.FrameOverheadLen+len(f.Data))

	// 固定字段
	packet = append(packet, constants.FrameAddress, constants.FrameNumber)

	// 帧头 + 命令 + 数据长度
	packet = append(packet, f.Header, f.Command, dataLen)

	// 数据区
	packet = append(packet, f.Data...)

	// 校验和（最后计算并追加）
	packet = append(packet, Checksum(f.Header, f.Command, dataLen, f.Data))

	return packet
}

// Decode 从字节序列解析协议帧
// 任何不满足帧形态的输入都返回(nil, false)，绝不panic:
//   - 长度不足最小帧长
//   - 地址/帧号不是固定常量
//   - 帧头不是两个已知标识之一
//   - 声明的数据长度与实际字节数不符
//   - 重算校验和与末尾字节不一致
func Decode(buf []byte) (*Frame, bool) {
	if len(buf) < constants.FrameMinLength {
		return nil, false
	}
	if buf[0] != constants.FrameAddress || buf[1] != constants.FrameNumber {
		return nil, false
	}

	header := buf[2]
	if header != constants.HeaderAppToVMC && header != constants.HeaderVMCToApp {
		return nil, false
	}

	command := buf[3]
	dataLen := int(buf[4])
	if len(buf) != constants.FrameOverheadLen+dataLen {
		return nil, false
	}

	data := buf[5 : 5+dataLen]
	if Checksum(header, command, buf[4], data) != buf[len(buf)-1] {
		return nil, false
	}

	frame := &Frame{
		Header:  header,
		Command: command,
		Data:    make([]byte, dataLen),
	}
	copy(frame.Data, data)
	return frame, true
}
