package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KevinKickass/OpenStimCore/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AutoFile selects a timestamped file in the working directory.
const AutoFile = "auto"

// AutoFileName returns wss_YYYYMMDD_HHMMSS.log for t.
func AutoFileName(t time.Time) string {
	return fmt.Sprintf("wss_%s.log", t.Format("20060102_150405"))
}

// New builds the process logger: a console core on stderr and, when
// cfg.File is set, a rotating JSON file core.
func New(cfg config.LogConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	if cfg.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
	}
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}

	if path := FilePath(cfg.File, time.Now()); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		w := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), level))
	}

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}
	return zap.New(zapcore.NewTee(cores...), opts...), nil
}

// FilePath resolves the log.file setting. Empty disables the file core.
func FilePath(file string, now time.Time) string {
	switch file {
	case "":
		return ""
	case AutoFile:
		return AutoFileName(now)
	default:
		return file
	}
}
