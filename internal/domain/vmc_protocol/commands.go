package vmc_protocol

import (
	"bytes"

	"github.com/bujia-iot/vmc-gateway/pkg/constants"
	"github.com/bujia-iot/vmc-gateway/pkg/errors"
)

// ValidateLane 校验货道号是否在合法地址空间内
func ValidateLane(lane byte) *errors.AppError {
	if !constants.IsValidLane(lane) {
		return errors.Newf(errors.ErrInvalidLane, "货道号 %d 不在合法地址空间内", lane)
	}
	return nil
}

// ValidateDelivery 出货/状态查询参数的发送前校验，不做任何I/O
func ValidateDelivery(lane, quantity byte) *errors.AppError {
	if err := ValidateLane(lane); err != nil {
		return err
	}
	if quantity < 1 {
		return errors.Newf(errors.ErrInvalidQuantity, "出货数量 %d 非法，有效范围 [1,255]", quantity)
	}
	return nil
}

// BuildGetDeviceIDFrame 构建查询设备标识请求帧 (0x31)
func BuildGetDeviceIDFrame() *Frame {
	return NewFrame(constants.CmdGetDeviceID, []byte{constants.GetDeviceIDFiller})
}

// BuildDeliveryFrame 构建出货命令请求帧 (0x41)，数据区为 [货道号, 数量]
func BuildDeliveryFrame(lane, quantity byte) (*Frame, *errors.AppError) {
	if err := ValidateDelivery(lane, quantity); err != nil {
		return nil, err
	}
	return NewFrame(constants.CmdDelivery, []byte{lane, quantity}), nil
}

// BuildRemoveFaultFrame 构建清除故障请求帧 (0xA2)
func BuildRemoveFaultFrame() *Frame {
	return NewFrame(constants.CmdRemoveFault, []byte{constants.RemoveFaultMagic})
}

// BuildQueryStatusFrame 构建出货状态查询请求帧 (0xE1)，数据区为 [货道号, 数量]
func BuildQueryStatusFrame(lane, quantity byte) (*Frame, *errors.AppError) {
	if err := ValidateDelivery(lane, quantity); err != nil {
		return nil, err
	}
	return NewFrame(constants.CmdQueryStatus, []byte{lane, quantity}), nil
}

// DeviceIDResponse 设备标识响应
type DeviceIDResponse struct {
	ID string // 15字节文本，尾部NUL填充已去除
}

// DeliveryResponse 出货命令回显响应
type DeliveryResponse struct {
	Lane     byte
	Quantity byte
}

// StatusResponse 出货状态查询响应
type StatusResponse struct {
	Success   bool
	ErrorCode byte // Success为false时携带控制器故障码
}

// SuccessResponse 清除故障响应
type SuccessResponse struct {
	Success bool
}

// ParseResponse 将控制器响应帧解析为对应命令的类型化响应
// requestCmd 为发起请求的命令字节；响应帧的命令字节必须与之一致，
// 否则视为协议错误（控制器回显了意料之外的命令）
func ParseResponse(requestCmd byte, frame *Frame) (interface{}, *errors.AppError) {
	if frame.Header != constants.HeaderVMCToApp {
		return nil, errors.Newf(errors.ErrFrameDecodeFailed, "响应帧头 0x%02X 不是控制器方向标识", frame.Header)
	}
	if frame.Command != requestCmd {
		return nil, errors.Newf(errors.ErrUnexpectedCommand, "期望命令 0x%02X，收到 0x%02X", requestCmd, frame.Command)
	}

	switch frame.Command {
	case constants.CmdGetDeviceID:
		return parseDeviceID(frame)
	case constants.CmdDelivery:
		return parseDelivery(frame)
	case constants.CmdRemoveFault:
		return parseRemoveFault(frame)
	case constants.CmdQueryStatus:
		return parseQueryStatus(frame)
	default:
		return nil, errors.Newf(errors.ErrUnexpectedCommand, "未知命令 0x%02X", frame.Command)
	}
}

// parseDeviceID 解析设备标识响应，去除尾部NUL填充
func parseDeviceID(frame *Frame) (*DeviceIDResponse, *errors.AppError) {
	if len(frame.Data) != constants.DeviceIDTextLen {
		return nil, errors.Newf(errors.ErrUnsupportedShape,
			"设备标识响应数据长度 %d，期望 %d", len(frame.Data), constants.DeviceIDTextLen)
	}
	id := string(bytes.TrimRight(frame.Data, "\x00"))
	return &DeviceIDResponse{ID: id}, nil
}

// parseDelivery 解析出货命令回显
func parseDelivery(frame *Frame) (*DeliveryResponse, *errors.AppError) {
	if len(frame.Data) != 2 {
		return nil, errors.Newf(errors.ErrUnsupportedShape,
			"出货回显数据长度 %d，期望 2", len(frame.Data))
	}
	return &DeliveryResponse{Lane: frame.Data[0], Quantity: frame.Data[1]}, nil
}

// parseRemoveFault 解析清除故障响应
func parseRemoveFault(frame *Frame) (*SuccessResponse, *errors.AppError) {
	if len(frame.Data) != 1 {
		return nil, errors.Newf(errors.ErrUnsupportedShape,
			"清除故障响应数据长度 %d，期望 1", len(frame.Data))
	}
	return &SuccessResponse{Success: frame.Data[0] == constants.RemoveFaultOK}, nil
}

// parseQueryStatus 解析出货状态查询响应
// 数据区只支持1字节形态；其他长度（历史固件的4字节形态）一律按协议错误处理，
// 不做静默兜底
func parseQueryStatus(frame *Frame) (*StatusResponse, *errors.AppError) {
	if len(frame.Data) != constants.StatusResponseLen {
		return nil, errors.Newf(errors.ErrUnsupportedShape,
			"状态响应数据长度 %d，仅支持 %d", len(frame.Data), constants.StatusResponseLen)
	}
	code := frame.Data[0]
	if code == constants.StatusSuccess {
		return &StatusResponse{Success: true}, nil
	}
	return &StatusResponse{Success: false, ErrorCode: code}, nil
}
