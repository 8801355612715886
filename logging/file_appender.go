package logging

import (
	"io"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultLogFileMaxSizeMB is the size at which a log file is rotated.
const DefaultLogFileMaxSizeMB = 100

// NewFileAppender returns an Appender writing JSON entries to filename, rotating the file once it
// exceeds maxSizeMB megabytes. Closing the returned io.Closer releases the file.
func NewFileAppender(filename string, maxSizeMB int) (Appender, io.Closer) {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultLogFileMaxSizeMB
	}
	rotator := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: 2,
		Compress:   true,
	}
	encoderConfig := NewZapLoggerConfig().EncoderConfig
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), zapcore.DebugLevel)
	return core, rotator
}
