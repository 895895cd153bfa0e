package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	adapterhttp "github.com/bujia-iot/vmc-gateway/internal/adapter/http"
	"github.com/bujia-iot/vmc-gateway/internal/app/service"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/config"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/logger"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/storage"
	"github.com/bujia-iot/vmc-gateway/internal/infrastructure/transport"
	"github.com/bujia-iot/vmc-gateway/internal/ports"
)

var configFile = flag.String("config", "configs/gateway.yaml", "配置文件路径")

func main() {
	// 解析命令行参数
	flag.Parse()

	// 加载配置文件
	if err := config.Load(*configFile); err != nil {
		fmt.Printf("加载配置文件失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.GetConfig()

	// 初始化日志
	if err := logger.Init(&cfg.Logger); err != nil {
		fmt.Printf("初始化日志系统失败: %v\n", err)
		os.Exit(1)
	}

	logger.Info("出货机网关 (VMC Gateway) 启动中...")

	// 初始化货道存储：Redis不可达时降级到内存存储
	// 降级状态下货道健康不跨重启保留，仅用于开发环境
	var store storage.LaneStore
	if err := storage.InitClient(); err != nil {
		logger.Warnf("初始化Redis连接失败，降级为内存货道存储: %v", err)
		store = storage.NewMemoryLaneStore()
	} else {
		store = storage.NewRedisLaneStore(storage.GetClient())
	}

	// 按配置选择链路后端
	link := buildTransport(cfg.Transport.Backend)
	if !link.Connect(cfg.Serial) {
		logger.Error("链路打开失败")
		os.Exit(1)
	}

	// 组装核心服务
	dispenser := service.NewDispenserService(link, cfg.Dispense)
	lanes, err := service.NewLaneManager(store, cfg.Lanes)
	if err != nil {
		logger.Errorf("初始化货道管理器失败: %v", err)
		os.Exit(1)
	}
	coordinator := service.NewCoordinator(dispenser, lanes)

	// 开机自检：读取设备标识
	probeCtx, probeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer probeCancel()
	if id, err := coordinator.GetDeviceID(probeCtx); err != nil {
		logger.Warnf("读取设备标识失败: %v", err)
	} else {
		logger.WithField("device_id", id).Info("控制器设备标识")
	}

	// 启动HTTP API服务器(Gin)
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	adapterhttp.NewHandlers(coordinator).RegisterRoutes(router)

	go func() {
		addr := config.FormatHTTPAddress()
		logger.Infof("HTTP API服务器监听 %s", addr)
		if err := router.Run(addr); err != nil {
			logger.Fatalf("启动HTTP API服务器失败: %v", err)
		}
	}()

	logger.Info("出货机网关启动完成")

	// 等待中断信号
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c

	// 释放链路与存储
	link.Disconnect()
	if err := storage.Close(); err != nil {
		logger.Errorf("关闭Redis连接失败: %v", err)
	}

	logger.Info("出货机网关已安全关闭")
}

// buildTransport 按配置创建链路后端
func buildTransport(backend string) ports.Transport {
	switch backend {
	case "simulated":
		script := transport.NewVMCScript("VMC-SIM-000001", 2)
		logger.Info("使用模拟链路后端")
		return transport.NewSimulatedTransport(script.Handle)
	case "simulated-notify":
		script := transport.NewVMCScript("VMC-SIM-000001", 0)
		logger.Info("使用主动上报式模拟链路后端")
		return transport.NewNotifyingSimulatedTransport(script.Handle)
	default:
		return transport.NewSerialTransport()
	}
}
