package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/bujia-iot/vmc-gateway/internal/app/dto"
	"github.com/bujia-iot/vmc-gateway/internal/domain/vmc_protocol"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/vmc-gateway/internal/ports"
	"github.com/bujia-iot/vmc-gateway/pkg/constants"
	"github.com/bujia-iot/vmc-gateway/pkg/errors"
)

// DispenserService 出货编排服务
// 驱动单次出货的完整流程：发出货命令 → 轮询状态到终态 → 映射为统一结果
// 串口链路是独占资源，内部互斥锁保证并发调用排队执行、绝不交错
type DispenserService struct {
	mu        sync.Mutex
	transport ports.Transport
	cfg       config.DispenseConfig
}

// NewDispenserService 创建出货编排服务
func NewDispenserService(transport ports.Transport, cfg config.DispenseConfig) *DispenserService {
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 25
	}
	if cfg.PollIntervalMs <= 0 {
		cfg.PollIntervalMs = 200
	}
	if cfg.EchoTimeoutMs <= 0 {
		cfg.EchoTimeoutMs = 300
	}
	if cfg.Quantity <= 0 || cfg.Quantity > 255 {
		cfg.Quantity = 1
	}
	return &DispenserService{
		transport: transport,
		cfg:       cfg,
	}
}

// Dispense 执行一次出货，永远返回结果、绝不panic
// 完整流程可达数秒，调用方应在非前台上下文中调用；ctx取消时轮询立即终止
func (s *DispenserService) Dispense(ctx context.Context, lane byte) *dto.DispenseResult {
	opID := uuid.NewString()
	start := time.Now()
	quantity := byte(s.cfg.Quantity)

	// 1. 发送前参数校验，不做任何I/O
	deliveryFrame, verr := vmc_protocol.BuildDeliveryFrame(lane, quantity)
	if verr != nil {
		return s.failure(opID, lane, start, verr.Code, 0, verr.Message)
	}

	// 串口独占：并发出货排队执行
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.transport.IsConnected() {
		return s.failure(opID, lane, start, errors.ErrLinkNotOpen, 0, "串口链路未打开")
	}

	log := logger.WithFields(logrus.Fields{
		"operation_id": opID,
		"lane":         lane,
	})
	log.Info("开始出货")

	// 2. 发送出货命令
	// 发送失败立即终止且不重试：命令是否已被控制器执行无从得知，
	// 重发可能导致二次出货
	s.transport.ClearBuffers()
	if !s.transport.Send(deliveryFrame.Encode()) {
		log.Error("出货命令发送失败")
		return s.failure(opID, lane, start, errors.ErrSendFailed, 0, "出货命令发送失败")
	}

	// 出货命令回显：缺失或破损只记日志，不影响流程
	s.absorbDeliveryEcho(lane, log)

	// 3. 等待终态：通知式后端走单次完成桥接，其余走轮询
	if notifier, ok := s.transport.(ports.StatusNotifier); ok {
		return s.awaitNotification(ctx, notifier, opID, lane, start, log)
	}
	return s.pollToTerminal(ctx, opID, lane, quantity, start, log)
}

// absorbDeliveryEcho 读取并校验出货命令回显
// 本硬件总是回显 [货道,数量]，但链路噪声可能吞掉回显帧；
// 出货是否成功最终由状态查询判定，回显异常不终止操作
func (s *DispenserService) absorbDeliveryEcho(lane byte, log *logrus.Entry) {
	raw := s.transport.Receive(time.Duration(s.cfg.EchoTimeoutMs) * time.Millisecond)
	if raw == nil {
		log.Debug("未收到出货命令回显")
		return
	}
	frame, ok := vmc_protocol.Decode(raw)
	if !ok {
		log.Debug("出货命令回显帧破损")
		return
	}
	resp, perr := vmc_protocol.ParseResponse(constants.CmdDelivery, frame)
	if perr != nil {
		log.WithField("error", perr).Debug("出货命令回显解析失败")
		return
	}
	if echo, ok := resp.(*vmc_protocol.DeliveryResponse); ok && echo.Lane != lane {
		log.WithField("echo_lane", echo.Lane).Warn("出货命令回显货道不一致")
	}
}

// pollToTerminal 有界轮询状态查询直到终态
// 单次轮询中的发送/解析失败消耗一次尝试后继续，不中止整个操作
func (s *DispenserService) pollToTerminal(ctx context.Context, opID string, lane, quantity byte, start time.Time, log *logrus.Entry) *dto.DispenseResult {
	pollInterval := time.Duration(s.cfg.PollIntervalMs) * time.Millisecond
	queryFrame, verr := vmc_protocol.BuildQueryStatusFrame(lane, quantity)
	if verr != nil {
		return s.failure(opID, lane, start, verr.Code, 0, verr.Message)
	}
	encoded := queryFrame.Encode()

	for attempt := 1; attempt <= s.cfg.MaxPollAttempts; attempt++ {
		// 固定轮询间隔，ctx取消时立即退出
		select {
		case <-ctx.Done():
			log.Warn("出货轮询被取消")
			return s.failure(opID, lane, start, errors.ErrCanceled, 0, "操作被调用方取消")
		case <-time.After(pollInterval):
		}

		if !s.transport.Send(encoded) {
			log.WithField("attempt", attempt).Debug("状态查询发送失败，消耗一次尝试")
			continue
		}

		raw := s.transport.Receive(pollInterval)
		if raw == nil {
			continue
		}
		frame, ok := vmc_protocol.Decode(raw)
		if !ok {
			log.WithField("attempt", attempt).Debug("状态响应帧破损，消耗一次尝试")
			continue
		}
		resp, perr := vmc_protocol.ParseResponse(constants.CmdQueryStatus, frame)
		if perr != nil {
			log.WithFields(logrus.Fields{"attempt": attempt, "error": perr}).Debug("状态响应解析失败，消耗一次尝试")
			continue
		}

		status := resp.(*vmc_protocol.StatusResponse)
		if status.Success {
			return s.success(opID, lane, start, log)
		}
		if status.ErrorCode == constants.StatusInProgress {
			continue
		}
		return s.hardwareFailure(opID, lane, start, status.ErrorCode, log)
	}

	elapsed := time.Since(start)
	log.WithField("elapsed_ms", elapsed.Milliseconds()).Warn("状态轮询超时，未到达终态")
	return s.failure(opID, lane, start, errors.ErrPollTimeout, 0,
		fmt.Sprintf("状态轮询超时 (%d 次 × %d ms)", s.cfg.MaxPollAttempts, s.cfg.PollIntervalMs))
}

// awaitNotification 桥接事件通知式后端
// 控制器在出货结束时主动上报终态帧；单次完成原语保证只恢复一次，
// 后续重复通知一律忽略。单链路且持锁期间只有一个在途操作，
// 因此收到的终态通知必然属于本次出货
func (s *DispenserService) awaitNotification(ctx context.Context, notifier ports.StatusNotifier, opID string, lane byte, start time.Time, log *logrus.Entry) *dto.DispenseResult {
	budget := time.Duration(s.cfg.MaxPollAttempts) * time.Duration(s.cfg.PollIntervalMs) * time.Millisecond
	waitCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := newOneShot()
	unsubscribe := notifier.SubscribeStatus(func(raw []byte) {
		frame, ok := vmc_protocol.Decode(raw)
		if !ok {
			return
		}
		resp, perr := vmc_protocol.ParseResponse(constants.CmdQueryStatus, frame)
		if perr != nil {
			return
		}
		status := resp.(*vmc_protocol.StatusResponse)
		if !status.Success && status.ErrorCode == constants.StatusInProgress {
			return
		}
		done.resolve(status.Success, status.ErrorCode)
	})
	defer unsubscribe()

	result, completed := done.wait(waitCtx)
	if !completed {
		if ctx.Err() != nil {
			log.Warn("等待上报时被取消")
			return s.failure(opID, lane, start, errors.ErrCanceled, 0, "操作被调用方取消")
		}
		return s.failure(opID, lane, start, errors.ErrPollTimeout, 0,
			fmt.Sprintf("等待控制器上报超时 (%s)", budget))
	}
	if result.success {
		return s.success(opID, lane, start, log)
	}
	return s.hardwareFailure(opID, lane, start, result.errorCode, log)
}

// GetDeviceID 查询控制器设备标识
func (s *DispenserService) GetDeviceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.roundTrip(ctx, vmc_protocol.BuildGetDeviceIDFrame(), constants.CmdGetDeviceID)
	if err != nil {
		return "", err
	}
	return resp.(*vmc_protocol.DeviceIDResponse).ID, nil
}

// RemoveFault 下发清除故障命令
func (s *DispenserService) RemoveFault(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp, err := s.roundTrip(ctx, vmc_protocol.BuildRemoveFaultFrame(), constants.CmdRemoveFault)
	if err != nil {
		return err
	}
	if !resp.(*vmc_protocol.SuccessResponse).Success {
		return errors.New(errors.ErrHardwareFault, "控制器拒绝清除故障")
	}
	return nil
}

// roundTrip 单请求单响应的通用往返，调用方须持有s.mu
func (s *DispenserService) roundTrip(ctx context.Context, frame *vmc_protocol.Frame, requestCmd byte) (interface{}, error) {
	if !s.transport.IsConnected() {
		return nil, errors.New(errors.ErrLinkNotOpen, "串口链路未打开")
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCanceled, "操作被调用方取消", err)
	}

	s.transport.ClearBuffers()
	if !s.transport.Send(frame.Encode()) {
		return nil, errors.New(errors.ErrSendFailed, "命令发送失败")
	}

	raw := s.transport.Receive(time.Duration(s.cfg.EchoTimeoutMs) * time.Millisecond)
	if raw == nil {
		return nil, errors.New(errors.ErrReceiveFailed, "未收到控制器响应")
	}
	decoded, ok := vmc_protocol.Decode(raw)
	if !ok {
		return nil, errors.New(errors.ErrFrameDecodeFailed, "响应帧破损")
	}
	resp, perr := vmc_protocol.ParseResponse(requestCmd, decoded)
	if perr != nil {
		return nil, perr
	}
	return resp, nil
}

// success 构建成功结果
func (s *DispenserService) success(opID string, lane byte, start time.Time, log *logrus.Entry) *dto.DispenseResult {
	elapsed := time.Since(start).Milliseconds()
	log.WithField("elapsed_ms", elapsed).Info("出货成功")
	return &dto.DispenseResult{
		OperationID: opID,
		Success:     true,
		Lane:        lane,
		ElapsedMs:   elapsed,
	}
}

// hardwareFailure 把控制器故障码映射为失败结果
// 已知码给出具体文案，未知码保留原始码并给出通用文案
func (s *DispenserService) hardwareFailure(opID string, lane byte, start time.Time, code byte, log *logrus.Entry) *dto.DispenseResult {
	name := constants.FaultCodeName(code)
	var appCode errors.ErrorCode
	var message string
	switch code {
	case constants.StatusMotorFault:
		appCode = errors.ErrMotorFault
		message = fmt.Sprintf("%s (code 0x%02X)", name, code)
	case constants.StatusOpticalFault:
		appCode = errors.ErrOpticalFault
		message = fmt.Sprintf("%s (code 0x%02X)", name, code)
	default:
		appCode = errors.ErrUnknown
		message = fmt.Sprintf("unknown error (code 0x%02X)", code)
	}
	log.WithFields(logrus.Fields{"fault_code": code, "message": message}).Warn("控制器上报出货故障")

	result := s.failure(opID, lane, start, appCode, code, message)
	return result
}

// failure 构建失败结果
func (s *DispenserService) failure(opID string, lane byte, start time.Time, code errors.ErrorCode, hwCode byte, message string) *dto.DispenseResult {
	return &dto.DispenseResult{
		OperationID:  opID,
		Success:      false,
		Lane:         lane,
		ErrorType:    errors.TypeOf(code),
		ErrorCode:    hwCode,
		ErrorMessage: message,
		ElapsedMs:    time.Since(start).Milliseconds(),
	}
}
