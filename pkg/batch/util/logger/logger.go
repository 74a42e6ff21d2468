package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// LogLevel はログのレベルを表す型です。
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String はレベル名を返します。
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// 非同期ジョブのゴルーチンからも参照されるため atomic で保持する
var logLevel atomic.Int32

var std = log.New(os.Stderr, "", log.LstdFlags)

func init() {
	logLevel.Store(int32(LevelInfo))
}

// SetLogLevel はログレベルを設定します。
func SetLogLevel(level string) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		logLevel.Store(int32(LevelDebug))
	case "INFO":
		logLevel.Store(int32(LevelInfo))
	case "WARN", "WARNING":
		logLevel.Store(int32(LevelWarn))
	case "ERROR":
		logLevel.Store(int32(LevelError))
	case "FATAL":
		logLevel.Store(int32(LevelFatal))
	default:
		fmt.Fprintf(os.Stderr, "警告: 不明なログレベル '%s' が指定されました。INFO レベルで続行します。\n", level)
		logLevel.Store(int32(LevelInfo))
	}
}

// GetLogLevel は現在のログレベルを返します。
func GetLogLevel() LogLevel {
	return LogLevel(logLevel.Load())
}

// SetOutput はログの出力先を変更します。テストでの出力キャプチャに使用します。
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func enabled(level LogLevel) bool {
	return LogLevel(logLevel.Load()) <= level
}

// Debugf は DEBUG レベルのログを出力します。
func Debugf(format string, v ...interface{}) {
	if enabled(LevelDebug) {
		std.Printf("[DEBUG] "+format, v...)
	}
}

// Infof は INFO レベルのログを出力します。
func Infof(format string, v ...interface{}) {
	if enabled(LevelInfo) {
		std.Printf("[INFO] "+format, v...)
	}
}

// Warnf は WARN レベルのログを出力します。
func Warnf(format string, v ...interface{}) {
	if enabled(LevelWarn) {
		std.Printf("[WARN] "+format, v...)
	}
}

// Errorf は ERROR レベルのログを出力します。
func Errorf(format string, v ...interface{}) {
	if enabled(LevelError) {
		std.Printf("[ERROR] "+format, v...)
	}
}

// Fatalf は FATAL レベルのログを出力し、プログラムを終了します。
func Fatalf(format string, v ...interface{}) {
	std.Fatalf("[FATAL] "+format, v...)
}
