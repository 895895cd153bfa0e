package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/bujia-iot/vmc-gateway/internal/ports"
)

// Config 是应用程序配置的结构体
type Config struct {
	HTTPAPIServer HTTPAPIServerConfig   `mapstructure:"httpApiServer"`
	Redis         RedisConfig           `mapstructure:"redis"`
	Logger        LoggerConfig          `mapstructure:"logger"`
	Transport     TransportConfig       `mapstructure:"transport"`
	Serial        ports.TransportConfig `mapstructure:"serial"`
	Dispense      DispenseConfig        `mapstructure:"dispense"`
	Lanes         LanesConfig           `mapstructure:"lanes"`
}

// HTTPAPIServerConfig HTTP API服务器配置
type HTTPAPIServerConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	TimeoutSeconds int    `mapstructure:"timeoutSeconds"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Address      string `mapstructure:"address"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"poolSize"`
	MinIdleConns int    `mapstructure:"minIdleConns"`
	DialTimeout  int    `mapstructure:"dialTimeout"`
	ReadTimeout  int    `mapstructure:"readTimeout"`
	WriteTimeout int    `mapstructure:"writeTimeout"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	FilePath      string `mapstructure:"filePath"`
	MaxSizeMB     int    `mapstructure:"maxSizeMB"`
	MaxBackups    int    `mapstructure:"maxBackups"`
	MaxAgeDays    int    `mapstructure:"maxAgeDays"`
	Compress      bool   `mapstructure:"compress"`
	LogHexDump    bool   `mapstructure:"logHexDump"`
	EnableConsole bool   `mapstructure:"enableConsole"`
}

// TransportConfig 链路后端选择配置
type TransportConfig struct {
	// Backend 后端类型: serial(真实串口) / simulated(模拟) / simulated-notify(模拟+主动上报)
	Backend string `mapstructure:"backend"`
}

// DispenseConfig 出货编排配置
type DispenseConfig struct {
	MaxPollAttempts int `mapstructure:"maxPollAttempts"` // 状态轮询最大次数
	PollIntervalMs  int `mapstructure:"pollIntervalMs"`  // 轮询间隔
	EchoTimeoutMs   int `mapstructure:"echoTimeoutMs"`   // 出货命令回显等待时长
	Quantity        int `mapstructure:"quantity"`        // 单次出货数量
}

// LanesConfig 货道管理配置
type LanesConfig struct {
	LoadBalanceThreshold int `mapstructure:"loadBalanceThreshold"` // 连续成功多少次后轮换货道
	FailureThreshold     int `mapstructure:"failureThreshold"`     // 连续失败多少次后停用货道
	StartLane            int `mapstructure:"startLane"`            // 冷启动时的初始货道
}

// 全局配置实例
var GlobalConfig Config

// Load 加载配置文件
func Load(configPath string) error {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := v.Unmarshal(&GlobalConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

// setDefaults 设置配置默认值，未在yaml中出现的键取这里的值
func setDefaults(v *viper.Viper) {
	v.SetDefault("transport.backend", "serial")

	v.SetDefault("serial.baudRate", ports.DefaultBaudRate)
	v.SetDefault("serial.dataBits", ports.DefaultDataBits)
	v.SetDefault("serial.stopBits", ports.DefaultStopBits)
	v.SetDefault("serial.parity", ports.DefaultParity)
	v.SetDefault("serial.flowControl", ports.DefaultFlowCtrl)
	v.SetDefault("serial.warmupMs", ports.DefaultWarmupMs)

	v.SetDefault("dispense.maxPollAttempts", 25)
	v.SetDefault("dispense.pollIntervalMs", 200)
	v.SetDefault("dispense.echoTimeoutMs", 300)
	v.SetDefault("dispense.quantity", 1)

	v.SetDefault("lanes.loadBalanceThreshold", 10)
	v.SetDefault("lanes.failureThreshold", 3)
	v.SetDefault("lanes.startLane", 1)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.enableConsole", true)
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	return &GlobalConfig
}

// FormatHTTPAddress 格式化HTTP服务器地址为host:port格式
func FormatHTTPAddress() string {
	cfg := GetConfig().HTTPAPIServer
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}
