// logging_adapters.go: Logger adapters for zerolog and logrus
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
)

// kvToFields turns alternating key-value args into a field map. A dangling
// key is kept under "!BADKEY" the way slog reports it.
func kvToFields(args []any) map[string]any {
	fields := make(map[string]any, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["!BADKEY"] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if err, isErr := args[i+1].(error); isErr {
			fields[key] = err.Error()
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}

// ZerologAdapter implements Logger on top of a zerolog.Logger.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter wraps a zerolog logger.
func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

func (z *ZerologAdapter) Debug(msg string, args ...any) {
	z.logger.Debug().Fields(kvToFields(args)).Msg(msg)
}

func (z *ZerologAdapter) Info(msg string, args ...any) {
	z.logger.Info().Fields(kvToFields(args)).Msg(msg)
}

func (z *ZerologAdapter) Warn(msg string, args ...any) {
	z.logger.Warn().Fields(kvToFields(args)).Msg(msg)
}

func (z *ZerologAdapter) Error(msg string, args ...any) {
	z.logger.Error().Fields(kvToFields(args)).Msg(msg)
}

func (z *ZerologAdapter) With(args ...any) Logger {
	return &ZerologAdapter{logger: z.logger.With().Fields(kvToFields(args)).Logger()}
}

// LogrusAdapter implements Logger on top of logrus.
type LogrusAdapter struct {
	entry *logrus.Entry
}

// NewLogrusAdapter wraps a logrus logger.
func NewLogrusAdapter(logger *logrus.Logger) *LogrusAdapter {
	return &LogrusAdapter{entry: logrus.NewEntry(logger)}
}

func (l *LogrusAdapter) Debug(msg string, args ...any) {
	l.entry.WithFields(logrus.Fields(kvToFields(args))).Debug(msg)
}

func (l *LogrusAdapter) Info(msg string, args ...any) {
	l.entry.WithFields(logrus.Fields(kvToFields(args))).Info(msg)
}

func (l *LogrusAdapter) Warn(msg string, args ...any) {
	l.entry.WithFields(logrus.Fields(kvToFields(args))).Warn(msg)
}

func (l *LogrusAdapter) Error(msg string, args ...any) {
	l.entry.WithFields(logrus.Fields(kvToFields(args))).Error(msg)
}

func (l *LogrusAdapter) With(args ...any) Logger {
	return &LogrusAdapter{entry: l.entry.WithFields(logrus.Fields(kvToFields(args)))}
}
