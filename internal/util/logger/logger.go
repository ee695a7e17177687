// Package logger 提供统一的日志接口
//
// 基于标准库 log/slog，支持按子系统配置日志级别：
//   - DEP2P_LOG_LEVEL: 日志级别，支持按子系统配置
//     格式: 子系统=级别,子系统=级别,默认级别
//     示例: engine=debug,transport=warn,info
//   - DEP2P_LOG_FORMAT: 日志格式 (text 或 json)
//
// 使用示例:
//
//	var log = logger.Logger("engine")
//
//	log.Info("connection established", "remote", remoteID.ShortString())
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// handlers 缓存各子系统的 Handler（用于动态调整级别）
	handlers sync.Map // map[string]*subsystemHandler

	configCache *config
	configOnce  sync.Once
)

// config 日志配置
type config struct {
	defaultLevel    slog.Level
	subsystemLevels map[string]slog.Level
	json            bool
}

// levelForSubsystem 获取指定子系统的日志级别
func (c *config) levelForSubsystem(subsystem string) slog.Level {
	if level, ok := c.subsystemLevels[subsystem]; ok {
		return level
	}
	return c.defaultLevel
}

// configFromEnv 从环境变量解析配置（只解析一次）
func configFromEnv() *config {
	configOnce.Do(func() {
		cfg := &config{
			defaultLevel:    slog.LevelInfo,
			subsystemLevels: make(map[string]slog.Level),
		}

		if levelStr := os.Getenv("DEP2P_LOG_LEVEL"); levelStr != "" {
			for _, part := range strings.Split(levelStr, ",") {
				part = strings.TrimSpace(part)
				if part == "" {
					continue
				}
				if sub, lvl, ok := strings.Cut(part, "="); ok {
					cfg.subsystemLevels[strings.TrimSpace(sub)] = parseLevel(lvl)
				} else {
					cfg.defaultLevel = parseLevel(part)
				}
			}
		}

		if strings.EqualFold(os.Getenv("DEP2P_LOG_FORMAT"), "json") {
			cfg.json = true
		}

		configCache = cfg
	})
	return configCache
}

// parseLevel 解析级别字符串
func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回相同实例。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := configFromEnv()
	handler := newHandler(subsystem, cfg.levelForSubsystem(subsystem), cfg.json)
	l := slog.New(handler)

	actual, loaded := loggers.LoadOrStore(subsystem, l)
	if !loaded {
		handlers.Store(subsystem, handler)
	}
	return actual.(*slog.Logger)
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).SetLevel(level)
	}
}

// Discard 返回一个丢弃所有日志的 Logger
//
// 主要用于测试，避免日志输出干扰测试结果。
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}
