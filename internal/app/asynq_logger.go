package app

import (
	"fmt"

	"github.com/dharsanguruparan/ReelDrop/internal/logging"
)

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct{}

func (asynqLogger) Debug(args ...any) {
	l := logging.Component("asynq")
	l.Debug().Msg(fmt.Sprint(args...))
}

func (asynqLogger) Info(args ...any) {
	l := logging.Component("asynq")
	l.Info().Msg(fmt.Sprint(args...))
}

func (asynqLogger) Warn(args ...any) {
	l := logging.Component("asynq")
	l.Warn().Msg(fmt.Sprint(args...))
}

func (asynqLogger) Error(args ...any) {
	l := logging.Component("asynq")
	l.Error().Msg(fmt.Sprint(args...))
}

func (asynqLogger) Fatal(args ...any) {
	l := logging.Component("asynq")
	l.Fatal().Msg(fmt.Sprint(args...))
}
