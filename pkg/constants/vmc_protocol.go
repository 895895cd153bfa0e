package constants

// VMC协议帧固定常量
const (
	// 帧固定字段（由控制器固件写死，所有帧相同）
	FrameAddress = 0x01 // 设备地址字节
	FrameNumber  = 0x40 // 帧序号字节

	// 帧头标识（区分数据流向）
	HeaderAppToVMC = 0x55 // 上位机 → 控制器
	HeaderVMCToApp = 0xAA // 控制器 → 上位机

	// 帧长度常量
	FrameMinLength    = 6   // 最小帧长度: 地址+帧号+帧头+命令+数据长度+校验和
	FrameMaxDataLen   = 255 // 数据区最大字节数
	FrameOverheadLen  = 6   // 帧固定开销（不含数据区）
	DeviceIDTextLen   = 15  // GetDeviceId响应的设备标识文本长度
	StatusResponseLen = 1   // 出货状态查询响应的数据区长度（唯一支持的形态）
)

// VMC协议命令字节
const (
	CmdGetDeviceID = 0x31 // 查询设备标识
	CmdDelivery    = 0x41 // 出货命令
	CmdRemoveFault = 0xA2 // 清除故障
	CmdQueryStatus = 0xE1 // 查询出货状态
)

// 命令固定数据区内容
const (
	GetDeviceIDFiller = 0x01 // GetDeviceId请求的填充字节
	RemoveFaultMagic  = 0xFF // RemoveFault请求的数据字节
	RemoveFaultOK     = 0x01 // RemoveFault成功响应的数据字节
)

// 出货状态码（QueryStatus响应数据区第一字节）
const (
	StatusInProgress   = 0x00 // 出货进行中，尚未到达终态
	StatusSuccess      = 0x01 // 出货完成
	StatusMotorFault   = 0x02 // 电机故障
	StatusOpticalFault = 0x03 // 光眼/传感器故障（掉货检测，视为缺货类故障）
)

// FaultCodeName 返回故障码的可读名称，未知码返回空字符串
func FaultCodeName(code byte) string {
	switch code {
	case StatusMotorFault:
		return "motor fault"
	case StatusOpticalFault:
		return "optical sensor fault"
	default:
		return ""
	}
}

// 货道地址空间常量
const (
	LaneRowCount    = 6  // 行数: 十位 0-5
	LaneColumnCount = 8  // 列数: 个位 1-8
	LaneTotalCount  = 48 // 合法货道总数
)

// IsValidLane 判断货道号是否在合法地址空间内
// 合法值: {1..8, 11..18, 21..28, 31..38, 41..48, 51..58}
// 十位为行(0-5)，个位为列(1-8)，共48个值
func IsValidLane(lane byte) bool {
	row := lane / 10
	col := lane % 10
	return row < LaneRowCount && col >= 1 && col <= LaneColumnCount
}

// AllLanes 按地址升序返回全部48个合法货道号
func AllLanes() []byte {
	lanes := make([]byte, 0, LaneTotalCount)
	for row := byte(0); row < LaneRowCount; row++ {
		for col := byte(1); col <= LaneColumnCount; col++ {
			lanes = append(lanes, row*10+col)
		}
	}
	return lanes
}

// NextLane 返回地址空间内循环递增的下一个合法货道号
func NextLane(lane byte) byte {
	col := lane%10 + 1
	row := lane / 10
	if col > LaneColumnCount {
		col = 1
		row++
	}
	if row >= LaneRowCount {
		row = 0
	}
	return row*10 + col
}
