package badger

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger adapts slog to badger's printf-style Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger.With(slog.String("component", "badger"))}
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.logger.Error(clean(format, args...))
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.logger.Warn(clean(format, args...))
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.logger.Info(clean(format, args...))
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug(clean(format, args...))
}

func clean(format string, args ...any) string {
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
