package events

import (
	"strings"

	"github.com/austindbirch/prestus_bff/internal/logging"
)

// NSQLogger routes go-nsq's internal log lines into the structured logger.
// It satisfies the logger interface taken by (*nsq.Producer).SetLogger.
type NSQLogger struct {
	logger *logging.Logger
}

func NewNSQLogger(l *logging.Logger) *NSQLogger {
	return &NSQLogger{logger: l}
}

// Output receives lines such as "WRN    1 (nsqd:4150) connecting to nsqd"
func (n *NSQLogger) Output(_ int, s string) error {
	level, msg := splitNSQLevel(s)
	entry := n.logger.Plain().WithField("component", "nsq")
	switch level {
	case "ERR":
		entry.Error(msg)
	case "WRN":
		entry.Warn(msg)
	case "INF":
		entry.Info(msg)
	default:
		entry.Debug(msg)
	}
	return nil
}

func splitNSQLevel(s string) (string, string) {
	s = strings.TrimSpace(s)
	if len(s) >= 3 {
		switch lvl := s[:3]; lvl {
		case "DBG", "INF", "WRN", "ERR":
			return lvl, strings.TrimSpace(s[3:])
		}
	}
	return "", s
}
