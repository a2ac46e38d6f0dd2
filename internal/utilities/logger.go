package utilities

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger はログ設定を初期化する
// LOG_FORMAT=json の場合は JSON 形式（本番推奨）、それ以外は ConsoleWriter
func InitLogger(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))

	var output io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		output = os.Stdout
	}

	log.Logger = zerolog.New(output).With().Timestamp().Caller().Logger()
}

// parseLevel はログレベル文字列を zerolog.Level に変換
func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "FATAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// GetLogger はグローバルロガーを返す
func GetLogger() *zerolog.Logger {
	return &log.Logger
}
