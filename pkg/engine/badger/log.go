package badger

import (
	"fmt"
	"strings"

	"github.com/marmos91/resolvd/internal/logger"
)

// badgerLogger routes badger's internal logging through the service logger.
// Badger is chatty at info level, so its info output is logged as debug.
type badgerLogger struct{}

func line(format string, args ...any) string {
	return "badger: " + strings.TrimSuffix(fmt.Sprintf(format, args...), "\n")
}

func (badgerLogger) Errorf(format string, args ...any)   { logger.Error(line(format, args...)) }
func (badgerLogger) Warningf(format string, args ...any) { logger.Warn(line(format, args...)) }
func (badgerLogger) Infof(format string, args ...any)    { logger.Debug(line(format, args...)) }
func (badgerLogger) Debugf(format string, args ...any)   { logger.Debug(line(format, args...)) }
