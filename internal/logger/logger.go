// 包 logger：统一初始化与获取进程日志器；级别与格式由配置层传入
package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// ParseLevel：debug/info/warn/error，未知值回退到 info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Setup：按级别与格式构建默认日志器
// 背景：format 为 json 时输出结构化日志，便于日志平台采集；其余为文本格式
// 约束：输出目标固定为标准错误
func Setup(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	l := slog.New(h)
	Set(l)
	return l
}

// Set：替换默认日志器（测试中可注入丢弃输出的实现）
func Set(l *slog.Logger) {
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

// L：获取默认日志器；未初始化时按 LOG_LEVEL/LOG_FORMAT 环境变量回退初始化
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	return Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
}

// Component：带 component 字段的子日志器
func Component(name string) *slog.Logger { return L().With("component", name) }
