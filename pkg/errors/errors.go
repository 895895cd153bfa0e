package errors

import (
	"fmt"
)

// ErrorCode 表示错误码类型
type ErrorCode int

// 定义应用程序的错误码，按错误类别分段
const (
	// 参数校验错误 (1000-1099)
	ErrInvalidLane ErrorCode = 1000 + iota
	ErrInvalidQuantity
	ErrInvalidParameter
)

const (
	// 链路/传输错误 (1100-1199)
	ErrLinkNotOpen ErrorCode = 1100 + iota
	ErrSendFailed
	ErrReceiveFailed
	ErrPermissionDenied
	ErrPortNotFound
)

const (
	// 协议错误 (1200-1299)
	ErrFrameDecodeFailed ErrorCode = 1200 + iota
	ErrChecksumMismatch
	ErrUnexpectedCommand
	ErrUnsupportedShape
)

const (
	// 超时错误 (1300-1399)
	ErrPollTimeout ErrorCode = 1300 + iota
	ErrCanceled
)

const (
	// 硬件上报错误 (1400-1499)
	ErrMotorFault ErrorCode = 1400 + iota
	ErrOpticalFault
	ErrHardwareFault
)

const (
	// 未定义错误 (1500-1599)
	ErrUnknown ErrorCode = 1500 + iota
)

// ErrorType 错误类别，对应调用方可见的统一分类
type ErrorType string

// 错误类别常量
const (
	TypeValidation ErrorType = "validation"
	TypeTransport  ErrorType = "transport"
	TypeProtocol   ErrorType = "protocol"
	TypeTimeout    ErrorType = "timeout"
	TypeHardware   ErrorType = "hardware"
	TypeUnknown    ErrorType = "unknown"
)

// TypeOf 根据错误码返回所属类别
func TypeOf(code ErrorCode) ErrorType {
	switch {
	case code >= 1000 && code < 1100:
		return TypeValidation
	case code >= 1100 && code < 1200:
		return TypeTransport
	case code >= 1200 && code < 1300:
		return TypeProtocol
	case code >= 1300 && code < 1400:
		return TypeTimeout
	case code >= 1400 && code < 1500:
		return TypeHardware
	default:
		return TypeUnknown
	}
}

// AppError 应用程序自定义错误类型
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持Go 1.13+的错误包装
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Type 返回错误所属类别
func (e *AppError) Type() ErrorType {
	return TypeOf(e.Code)
}

// New 创建一个新的AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf 创建一个带格式化消息的AppError
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap 包装一个已有的错误
func Wrap(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// IsErrCode 检查错误是否为指定的错误码
func IsErrCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	appErr, ok := err.(*AppError)
	return ok && appErr.Code == code
}

// IsType 检查错误是否属于指定类别
func IsType(err error, t ErrorType) bool {
	if err == nil {
		return false
	}
	appErr, ok := err.(*AppError)
	return ok && appErr.Type() == t
}
