package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/truenas-collector/pkg/backoff"
)

var valid = validator.New()

// Config 全局配置结构体（聚合所有核心模块）
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server" comment:"HTTP服务配置"`
	TrueNAS TrueNASConfig `yaml:"truenas" mapstructure:"truenas" comment:"TrueNAS 连接配置"`
	Monitor MonitorConfig `yaml:"monitor" mapstructure:"monitor" comment:"监控采集配置"`
	Log     ZapLogConfig  `yaml:"log" mapstructure:"log" comment:"日志配置"`
}

// ServerConfig HTTP服务配置（超时统一为time.Duration，支持"30s"解析）
type ServerConfig struct {
	Addr                 string        `yaml:"addr" mapstructure:"addr" env:"SERVER_ADDR" validate:"required,hostname_port" comment:"HTTP监听地址（格式：ip:port）"`
	ReadTimeout          time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" env:"SERVER_READ_TIMEOUT" validate:"required,gt=0" comment:"读取超时时间"`
	WriteTimeout         time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" env:"SERVER_WRITE_TIMEOUT" validate:"required,gt=0" comment:"写入超时时间"`
	IdleTimeout          time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" validate:"required,gt=0" comment:"空闲连接超时时间"`
	EnableProcessMetrics bool          `yaml:"enable_process_metrics" mapstructure:"enable_process_metrics" env:"SERVER_ENABLE_PROCESS_METRICS" comment:"是否暴露 exporter 自身进程指标" default:"true"`
}

// TrueNASConfig 设备连接、认证与重连配置
type TrueNASConfig struct {
	Host              string        `yaml:"host" mapstructure:"host" env:"TRUENAS_HOST" validate:"required" comment:"设备地址 host 或 host:port"`
	APIKey            string        `yaml:"api_key" mapstructure:"api_key" env:"TRUENAS_API_KEY" validate:"required" comment:"API Key"`
	UseTLS            bool          `yaml:"use_tls" mapstructure:"use_tls" env:"TRUENAS_USE_TLS" comment:"使用 wss://" default:"false"`
	VerifySSL         bool          `yaml:"verify_ssl" mapstructure:"verify_ssl" env:"TRUENAS_VERIFY_SSL" comment:"校验设备证书" default:"true"`
	Path              string        `yaml:"path" mapstructure:"path" env:"TRUENAS_PATH" validate:"required,startswith=/" comment:"WebSocket 路径" default:"/api/current"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" mapstructure:"handshake_timeout" env:"TRUENAS_HANDSHAKE_TIMEOUT" validate:"required,gt=0" default:"10s"`
	AuthTimeout       time.Duration `yaml:"auth_timeout" mapstructure:"auth_timeout" env:"TRUENAS_AUTH_TIMEOUT" validate:"required,gt=0" default:"10s"`
	CallTimeout       time.Duration `yaml:"call_timeout" mapstructure:"call_timeout" env:"TRUENAS_CALL_TIMEOUT" validate:"required,gt=0" default:"15s"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval" mapstructure:"keepalive_interval" env:"TRUENAS_KEEPALIVE_INTERVAL" validate:"gte=0" comment:"心跳间隔，0 关闭" default:"30s"`
	SharedAuthBackoff bool          `yaml:"shared_auth_backoff" mapstructure:"shared_auth_backoff" env:"TRUENAS_SHARED_AUTH_BACKOFF" comment:"认证失败与连接失败共用退避计数" default:"true"`
	Backoff           BackoffConfig `yaml:"backoff" mapstructure:"backoff" comment:"重连退避策略"`
}

// BackoffConfig 重连退避参数
type BackoffConfig struct {
	Min        time.Duration `yaml:"min" mapstructure:"min" env:"TRUENAS_BACKOFF_MIN" validate:"required,gt=0" default:"1s"`
	Max        time.Duration `yaml:"max" mapstructure:"max" env:"TRUENAS_BACKOFF_MAX" validate:"required,gtefield=Min" default:"60s"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier" env:"TRUENAS_BACKOFF_MULTIPLIER" validate:"gte=1" default:"2"`
	Jitter     float64       `yaml:"jitter" mapstructure:"jitter" env:"TRUENAS_BACKOFF_JITTER" validate:"gte=0,lte=1" default:"0.2"`
}

// Policy converts the settings into a backoff.Policy.
func (b BackoffConfig) Policy() backoff.Policy {
	return backoff.Policy{Min: b.Min, Max: b.Max, Multiplier: b.Multiplier, Jitter: b.Jitter}
}

// MonitorConfig 监控采集全局配置
type MonitorConfig struct {
	Interval      time.Duration   `yaml:"interval" mapstructure:"interval" env:"MONITOR_INTERVAL" validate:"required,gt=0" comment:"采集间隔" default:"60s"`
	DomainTimeout time.Duration   `yaml:"domain_timeout" mapstructure:"domain_timeout" env:"MONITOR_DOMAIN_TIMEOUT" validate:"required,gt=0" comment:"单个指标域的采集超时" default:"30s"`
	Collectors    CollectorConfig `yaml:"collectors" mapstructure:"collectors" comment:"各指标域开关"`
}

// CollectorConfig 指标域开关，默认全部开启
type CollectorConfig struct {
	Pool             bool `yaml:"pool" mapstructure:"pool" env:"MONITOR_COLLECTORS_POOL" default:"true"`
	Dataset          bool `yaml:"dataset" mapstructure:"dataset" env:"MONITOR_COLLECTORS_DATASET" default:"true"`
	Disk             bool `yaml:"disk" mapstructure:"disk" env:"MONITOR_COLLECTORS_DISK" default:"true"`
	Smart            bool `yaml:"smart" mapstructure:"smart" env:"MONITOR_COLLECTORS_SMART" default:"true"`
	Share            bool `yaml:"share" mapstructure:"share" env:"MONITOR_COLLECTORS_SHARE" comment:"SMB 与 NFS 共享" default:"true"`
	CloudSync        bool `yaml:"cloud_sync" mapstructure:"cloud_sync" env:"MONITOR_COLLECTORS_CLOUD_SYNC" default:"true"`
	SnapshotTask     bool `yaml:"snapshot_task" mapstructure:"snapshot_task" env:"MONITOR_COLLECTORS_SNAPSHOT_TASK" default:"true"`
	Alert            bool `yaml:"alert" mapstructure:"alert" env:"MONITOR_COLLECTORS_ALERT" default:"true"`
	SystemInfo       bool `yaml:"system_info" mapstructure:"system_info" env:"MONITOR_COLLECTORS_SYSTEM_INFO" default:"true"`
	Reporting        bool `yaml:"reporting" mapstructure:"reporting" env:"MONITOR_COLLECTORS_REPORTING" default:"true"`
	App              bool `yaml:"app" mapstructure:"app" env:"MONITOR_COLLECTORS_APP" default:"true"`
	NetworkInterface bool `yaml:"network_interface" mapstructure:"network_interface" env:"MONITOR_COLLECTORS_NETWORK_INTERFACE" default:"true"`
	Service          bool `yaml:"service" mapstructure:"service" env:"MONITOR_COLLECTORS_SERVICE" default:"true"`
}

// ZapLogConfig 日志配置
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" env:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal" comment:"日志级别" default:"info"`
	Format    string `yaml:"format" mapstructure:"format" env:"LOG_FORMAT" validate:"required,oneof=json console" comment:"日志格式（json/console）" default:"json"`
	Path      string `yaml:"path" mapstructure:"path" env:"LOG_PATH" validate:"required" comment:"日志存储路径" default:"./logs"`
	MaxSize   int    `yaml:"max_size" mapstructure:"max_size" env:"LOG_MAX_SIZE" validate:"required,gt=0" comment:"单个日志文件最大大小（MB）" default:"100"`
	MaxBackup int    `yaml:"max_backup" mapstructure:"max_backup" env:"LOG_MAX_BACKUP" validate:"gte=0" comment:"日志文件最大备份数" default:"30"`
	MaxAge    int    `yaml:"max_age" mapstructure:"max_age" env:"LOG_MAX_AGE" validate:"gte=0" comment:"日志文件最大保存天数" default:"7"`
	Compress  bool   `yaml:"compress" mapstructure:"compress" env:"LOG_COMPRESS" comment:"是否压缩过期日志" default:"true"`
}

// NewDefaultConfig 创建默认配置，host 与 api_key 没有默认值
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:                 "0.0.0.0:9100",
			ReadTimeout:          5 * time.Second,
			WriteTimeout:         10 * time.Second,
			IdleTimeout:          15 * time.Second,
			EnableProcessMetrics: true,
		},
		TrueNAS: TrueNASConfig{
			VerifySSL:         true,
			Path:              "/api/current",
			HandshakeTimeout:  10 * time.Second,
			AuthTimeout:       10 * time.Second,
			CallTimeout:       15 * time.Second,
			KeepaliveInterval: 30 * time.Second,
			SharedAuthBackoff: true,
			Backoff: BackoffConfig{
				Min:        time.Second,
				Max:        60 * time.Second,
				Multiplier: 2,
				Jitter:     0.2,
			},
		},
		Monitor: MonitorConfig{
			Interval:      60 * time.Second,
			DomainTimeout: 30 * time.Second,
			Collectors: CollectorConfig{
				Pool:             true,
				Dataset:          true,
				Disk:             true,
				Smart:            true,
				Share:            true,
				CloudSync:        true,
				SnapshotTask:     true,
				Alert:            true,
				SystemInfo:       true,
				Reporting:        true,
				App:              true,
				NetworkInterface: true,
				Service:          true,
			},
		},
		Log: ZapLogConfig{
			Level:     "info",
			Format:    "json",
			Path:      "./logs",
			MaxSize:   100,
			MaxBackup: 30,
			MaxAge:    7,
			Compress:  true,
		},
	}
}

// LoadConfigWithCli 合并 Flags + YAML + ENV，支持 time.Duration
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	// 1. 绑定 Cobra Flags → Viper，flag 名中的 '-' 对应配置键中的 '_'
	var bindErr error
	bind := func(f *pflag.Flag) {
		if f.Name == "config" || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	}
	cmd.Flags().VisitAll(bind)
	cmd.InheritedFlags().VisitAll(bind)
	if bindErr != nil {
		return nil, fmt.Errorf("bind flags: %w", bindErr)
	}

	// 2. 解析配置文件 (--config)
	configFile, _ := cmd.Flags().GetString("config")
	return Load(v, configFile)
}

// Load decodes the settings known to v, optionally merged with a YAML file,
// over the defaults and validates the result.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	cfg := NewDefaultConfig()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// 3. 绑定环境变量 (truenas.api_key -> TRUENAS_API_KEY)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	// 4. 解码到结构体（支持 time.Duration）
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.TrueNAS.APIKey = strings.TrimSpace(cfg.TrueNAS.APIKey)
	cfg.TrueNAS.Host = strings.TrimSpace(cfg.TrueNAS.Host)

	// 5. 校验配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// envKeys 没有 flag 也没有写进配置文件时，AutomaticEnv 看不到这些键
var envKeys = []string{
	"truenas.host",
	"truenas.api_key",
	"truenas.use_tls",
	"truenas.verify_ssl",
	"monitor.interval",
	"monitor.domain_timeout",
	"log.level",
	"log.path",
}

// Validate 配置校验
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	// 1, 校验Server服务配置
	if err := c.Server.Validate(); err != nil {
		return err
	}
	// 2, 校验设备连接配置
	if err := c.TrueNAS.Validate(); err != nil {
		return err
	}
	// 3, 校验采集配置
	if err := c.Monitor.Validate(); err != nil {
		return err
	}
	// 4, 校验日志配置
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}
