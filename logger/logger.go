package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	mu           sync.RWMutex
	globalLogger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	closers      []io.Closer
)

type Config struct {
	Level   string   `json:"level" yaml:"level" mapstructure:"level"`       // debug/info/warn/error
	Outputs []string `json:"outputs" yaml:"outputs" mapstructure:"outputs"` // stdout/stderr/file path
}

// ParseLevel 未识别的级别按 info 处理
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New 按配置创建 logger，返回的 closer 关闭所有打开的日志文件
func New(cfg Config) (*slog.Logger, func() error, error) {
	var (
		writers []io.Writer
		files   []io.Closer
	)
	closeAll := func() error {
		var firstErr error
		for _, f := range files {
			if err := f.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}

	for _, output := range cfg.Outputs {
		switch output {
		case "", "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			// 确保目录存在
			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("create log dir: %w", err)
			}
			file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("open log file: %w", err)
			}
			writers = append(writers, file)
			files = append(files, file)
		}
	}

	// 如果没有指定输出，默认使用stdout
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	l := slog.New(slog.NewTextHandler(io.MultiWriter(writers...), &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	}))
	return l, closeAll, nil
}

// Init 替换全局 logger。可以重复调用，之前打开的日志文件会被关闭
func Init(cfg Config) error {
	l, closeFn, err := New(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	old := closers
	globalLogger = l
	closers = []io.Closer{closerFunc(closeFn)}
	mu.Unlock()

	for _, c := range old {
		c.Close()
	}
	slog.SetDefault(l)
	return nil
}

// Close 关闭日志文件，全局 logger 回到 stderr
func Close() error {
	mu.Lock()
	old := closers
	closers = nil
	globalLogger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	mu.Unlock()

	var firstErr error
	for _, c := range old {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}
