package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup 初始化全局 zerolog：开发环境彩色控制台输出，生产环境 JSON
func Setup(production, debug bool) zerolog.Logger {
	return SetupWriter(os.Stdout, production, debug)
}

// SetupWriter 同 Setup，但输出到指定 writer（测试使用）
func SetupWriter(w io.Writer, production, debug bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	out := w
	if !production {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}

	l := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = l
	return l
}
