package agent

import (
	"github.com/spf13/cobra"

	"github.com/truenas-collector/pkg/config"
)

// flag 名中的 '-' 在加载时映射为配置键里的 '_'，如 server.read-timeout -> server.read_timeout
var defaultCfg = config.NewDefaultConfig()

func initServerFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.String("server.addr", defaultCfg.Server.Addr, "-> HTTP listening address (HTTP监听地址)")
	f.Duration("server.read-timeout", defaultCfg.Server.ReadTimeout, "-> Read timeout duration (读取超时时间)")
	f.Duration("server.write-timeout", defaultCfg.Server.WriteTimeout, "-> Write timeout duration (写入超时时间)")
	f.Duration("server.idle-timeout", defaultCfg.Server.IdleTimeout, "-> Idle connection timeout duration (空闲连接超时时间)")
	f.Bool("server.enable-process-metrics", defaultCfg.Server.EnableProcessMetrics, "-> Expose exporter process metrics (暴露自身进程指标)")
}

func initTrueNASFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	t := defaultCfg.TrueNAS

	f.String("truenas.host", t.Host, "-> Appliance host or host:port | 设备地址")
	f.String("truenas.api-key", t.APIKey, "-> API key, prefer TRUENAS_API_KEY | API Key，建议用环境变量")
	f.Bool("truenas.use-tls", t.UseTLS, "-> Connect with wss:// | 使用 TLS")
	f.Bool("truenas.verify-ssl", t.VerifySSL, "-> Verify the appliance certificate | 校验证书")
	f.String("truenas.path", t.Path, "-> WebSocket endpoint path | WebSocket 路径")
	f.Duration("truenas.handshake-timeout", t.HandshakeTimeout, "-> WebSocket handshake timeout | 握手超时")
	f.Duration("truenas.auth-timeout", t.AuthTimeout, "-> Login call timeout | 认证超时")
	f.Duration("truenas.call-timeout", t.CallTimeout, "-> Per RPC call timeout | 单次调用超时")
	f.Duration("truenas.keepalive-interval", t.KeepaliveInterval, "-> core.ping interval, 0 disables | 心跳间隔，0 关闭")
	f.Bool("truenas.shared-auth-backoff", t.SharedAuthBackoff, "-> Auth failures share the reconnect backoff counter | 认证失败共用退避计数")
	f.Duration("truenas.backoff.min", t.Backoff.Min, "-> Minimum reconnect delay | 最小重连间隔")
	f.Duration("truenas.backoff.max", t.Backoff.Max, "-> Maximum reconnect delay | 最大重连间隔")
	f.Float64("truenas.backoff.multiplier", t.Backoff.Multiplier, "-> Reconnect delay multiplier | 退避倍数")
	f.Float64("truenas.backoff.jitter", t.Backoff.Jitter, "-> Reconnect delay jitter ratio | 退避抖动比例")
}

func initMonitorFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	m := defaultCfg.Monitor

	f.Duration("monitor.interval", m.Interval, "采集间隔")
	f.Duration("monitor.domain-timeout", m.DomainTimeout, "单个指标域采集超时")

	c := m.Collectors
	f.Bool("monitor.collectors.pool", c.Pool, "启用存储池")
	f.Bool("monitor.collectors.dataset", c.Dataset, "启用数据集")
	f.Bool("monitor.collectors.disk", c.Disk, "启用磁盘")
	f.Bool("monitor.collectors.smart", c.Smart, "启用 SMART")
	f.Bool("monitor.collectors.share", c.Share, "启用 SMB/NFS 共享")
	f.Bool("monitor.collectors.cloud-sync", c.CloudSync, "启用云同步任务")
	f.Bool("monitor.collectors.snapshot-task", c.SnapshotTask, "启用快照任务")
	f.Bool("monitor.collectors.alert", c.Alert, "启用告警")
	f.Bool("monitor.collectors.system-info", c.SystemInfo, "启用系统信息")
	f.Bool("monitor.collectors.reporting", c.Reporting, "启用 reporting 图表")
	f.Bool("monitor.collectors.app", c.App, "启用应用")
	f.Bool("monitor.collectors.network-interface", c.NetworkInterface, "启用网卡")
	f.Bool("monitor.collectors.service", c.Service, "启用系统服务")
}

func initLogFlags(root *cobra.Command) {
	f := root.PersistentFlags()
	logPrefix := "log."

	f.String(
		logPrefix+"level",
		defaultCfg.Log.Level,
		"-> Log level [debug,info,warn,error] | 日志级别")
	f.String(
		logPrefix+"format",
		defaultCfg.Log.Format,
		"-> Log file format [console,json] | 日志格式")
	f.String(
		logPrefix+"path",
		defaultCfg.Log.Path,
		"-> Log file storage path | 日志路径")
	f.Int(
		logPrefix+"max-size",
		defaultCfg.Log.MaxSize,
		"-> Max size of single log file (MB) | 单文件最大MB")
	f.Int(
		logPrefix+"max-backup",
		defaultCfg.Log.MaxBackup,
		"-> Number of log backup files | 备份数量")
	f.Int(
		logPrefix+"max-age",
		defaultCfg.Log.MaxAge,
		"-> Maximum retention days of log files | 保存天数")
	f.Bool(
		logPrefix+"compress",
		defaultCfg.Log.Compress,
		"-> Whether to compress expired log files | 是否压缩")
}
