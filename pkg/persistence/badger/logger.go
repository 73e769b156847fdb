package badger

import (
	"fmt"
	"strings"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// badgerLoggerAdapter routes badger's printf-style output into zap. Badger
// reports compactions and value log replay at info level; those go to debug.
type badgerLoggerAdapter struct {
	logger *zap.Logger
}

var _ badgerdb.Logger = (*badgerLoggerAdapter)(nil)

func (b *badgerLoggerAdapter) logf(level zapcore.Level, format string, args ...interface{}) {
	if ce := b.logger.Check(level, ""); ce != nil {
		ce.Message = strings.TrimRight(fmt.Sprintf(format, args...), "\n")
		ce.Write(zap.String("component", "badger"))
	}
}

func (b *badgerLoggerAdapter) Errorf(format string, args ...interface{}) {
	b.logf(zapcore.ErrorLevel, format, args...)
}

func (b *badgerLoggerAdapter) Warningf(format string, args ...interface{}) {
	b.logf(zapcore.WarnLevel, format, args...)
}

func (b *badgerLoggerAdapter) Infof(format string, args ...interface{}) {
	b.logf(zapcore.DebugLevel, format, args...)
}

func (b *badgerLoggerAdapter) Debugf(format string, args ...interface{}) {
	b.logf(zapcore.DebugLevel, format, args...)
}
