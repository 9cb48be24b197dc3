package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop().Sugar()
)

// Init configures the process-wide logger. Safe to call more than once;
// the last call wins.
func Init() {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stdout),
		zapcore.InfoLevel,
	)

	mu.Lock()
	log = zap.New(core).Sugar()
	mu.Unlock()

	Info("logger initialized", nil)
}

func current() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func kvs(fields map[string]any) []any {
	out := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

func Info(msg string, fields map[string]any) {
	current().Infow(msg, kvs(fields)...)
}

func Warn(msg string, fields map[string]any) {
	current().Warnw(msg, kvs(fields)...)
}

func Error(msg string, fields map[string]any) {
	current().Errorw(msg, kvs(fields)...)
}

func Fatal(msg string, fields map[string]any) {
	current().Fatalw(msg, kvs(fields)...)
}
