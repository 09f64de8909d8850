package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/truenas-collector/pkg/config"
	"github.com/truenas-collector/pkg/goid"
)

const timeLayout = "2006-01-02 15:04:05.000 -07:00"

var (
	baseLogger        *zap.Logger
	loggerInitOnce    sync.Once
	loggerInitialized bool
)

// InitLogger 初始化全局日志并返回实例，只有第一次调用生效
func InitLogger(cfg *config.ZapLogConfig) (*zap.Logger, error) {
	if err := Init(*cfg); err != nil {
		return nil, err
	}
	return baseLogger, nil
}

func Init(cfg config.ZapLogConfig) error {
	var err error
	loggerInitOnce.Do(func() {
		level, lErr := zapcore.ParseLevel(strings.ToLower(cfg.Level))
		if lErr != nil {
			level = zapcore.InfoLevel
		}

		if err = os.MkdirAll(cfg.Path, 0755); err != nil {
			return
		}

		writer, wErr := rotatelogs.New(
			filepath.Join(cfg.Path, "truenas-collector-%Y%m%d.log"),
			rotateOptions(cfg)...,
		)
		if wErr != nil {
			err = wErr
			return
		}

		core := zapcore.NewTee(
			zapcore.NewCore(consoleEncoder(), zapcore.AddSync(os.Stdout), level),
			zapcore.NewCore(fileEncoder(cfg.Format), zapcore.AddSync(writer), level),
		)

		baseLogger = zap.New(goidCore{core}, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
		loggerInitialized = true
	})
	return err
}

// rotatelogs 不允许同时设置 MaxAge 与 RotationCount，按天数优先
func rotateOptions(cfg config.ZapLogConfig) []rotatelogs.Option {
	opts := []rotatelogs.Option{rotatelogs.WithRotationTime(24 * time.Hour)}
	if cfg.MaxSize > 0 {
		opts = append(opts, rotatelogs.WithRotationSize(int64(cfg.MaxSize)*1024*1024))
	}
	switch {
	case cfg.MaxAge > 0:
		opts = append(opts, rotatelogs.WithMaxAge(time.Duration(cfg.MaxAge)*24*time.Hour))
	case cfg.MaxBackup > 0:
		opts = append(opts, rotatelogs.WithRotationCount(uint(cfg.MaxBackup)))
	default:
		opts = append(opts, rotatelogs.WithMaxAge(-1))
	}
	return opts
}

func consoleEncoder() zapcore.Encoder {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.ConsoleSeparator = " "
	// 控制台彩色时间
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(fmt.Sprintf("\033[34m%s\033[0m", t.Format(timeLayout)))
	}
	encCfg.EncodeLevel = coloredLevelEncoder
	// Caller 两级路径
	encCfg.EncodeCaller = func(c zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		rel := filepath.Join(filepath.Base(filepath.Dir(c.File)), filepath.Base(c.File))
		enc.AppendString(fmt.Sprintf("%s:%d", rel, c.Line))
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

// 文件日志不带颜色
func fileEncoder(format string) zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Format(timeLayout))
	}
	encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	if format == "console" {
		return zapcore.NewConsoleEncoder(encCfg)
	}
	return zapcore.NewJSONEncoder(encCfg)
}

func coloredLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	var levelStr string
	switch level {
	case zapcore.DebugLevel:
		levelStr = "\033[36mDEBUG\033[0m"
	case zapcore.InfoLevel:
		levelStr = "\033[32mINFO \033[0m"
	case zapcore.WarnLevel:
		levelStr = "\033[33mWARN \033[0m"
	case zapcore.ErrorLevel:
		levelStr = "\033[31mERROR\033[0m"
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		levelStr = "\033[35m" + level.CapitalString() + "\033[0m"
	default:
		levelStr = "UNK  "
	}
	enc.AppendString(levelStr)
}

// goidCore 在写入时追加当前 goroutine id，注入到各组件的子 logger 同样生效
type goidCore struct {
	zapcore.Core
}

func (c goidCore) With(fields []zapcore.Field) zapcore.Core {
	return goidCore{c.Core.With(fields)}
}

func (c goidCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c goidCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(e, append(fields, zap.Uint64("goid", goid.GetGID())))
}

// ---------- package level helpers ----------

func log(level zapcore.Level, msg string, fields ...zapcore.Field) {
	if !loggerInitialized {
		panic("logger not initialized: call logger.Init() first")
	}
	l := baseLogger.WithOptions(zap.AddCallerSkip(2))
	switch level {
	case zap.DebugLevel:
		l.Debug(msg, fields...)
	case zap.InfoLevel:
		l.Info(msg, fields...)
	case zap.WarnLevel:
		l.Warn(msg, fields...)
	case zap.ErrorLevel:
		l.Error(msg, fields...)
	case zap.PanicLevel:
		l.Panic(msg, fields...)
	case zap.FatalLevel:
		l.Fatal(msg, fields...)
	}
}

func Debug(msg string, fields ...zapcore.Field) { log(zap.DebugLevel, msg, fields...) }
func Info(msg string, fields ...zapcore.Field)  { log(zap.InfoLevel, msg, fields...) }
func Warn(msg string, fields ...zapcore.Field)  { log(zap.WarnLevel, msg, fields...) }
func Error(msg string, fields ...zapcore.Field) { log(zap.ErrorLevel, msg, fields...) }
func Panic(msg string, fields ...zapcore.Field) { log(zap.PanicLevel, msg, fields...) }
func Fatal(msg string, fields ...zapcore.Field) { log(zap.FatalLevel, msg, fields...) }

func Sync() error {
	if !loggerInitialized {
		return nil
	}
	return baseLogger.Sync()
}

func GetLogger() *zap.Logger {
	if !loggerInitialized {
		panic("logger not initialized: call logger.Init() first")
	}
	return baseLogger
}

// Named returns a child logger for a component, e.g. "link" or "collector".
func Named(component string) *zap.Logger {
	return GetLogger().Named(component)
}
