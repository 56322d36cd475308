package checkengine

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/vectron-cce/cce/internal/cluster"
)

// stdTraceLogger is a small severity-tagged wrapper over log.Logger,
// matching the plain log.Printf register worker/cmd/worker and
// placementdriver/cmd/placementdriver already use; no structured-logging
// library appears anywhere else in this codebase.
type stdTraceLogger struct {
	logger *log.Logger
}

// NewTraceLogger builds a cluster.TraceLogger writing to the standard
// logger, used by cmd/cce when no other logger is wired in.
func NewTraceLogger(logger *log.Logger) cluster.TraceLogger {
	if logger == nil {
		logger = log.Default()
	}
	return &stdTraceLogger{logger: logger}
}

func (t *stdTraceLogger) Info(event string, fields map[string]any) {
	t.logger.Printf("INFO  %s %s", event, formatFields(fields))
}

func (t *stdTraceLogger) Warn(event string, fields map[string]any) {
	t.logger.Printf("WARN  %s %s", event, formatFields(fields))
}

func (t *stdTraceLogger) Error(event string, fields map[string]any) {
	t.logger.Printf("ERROR %s %s", event, formatFields(fields))
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(toString(fields[k]))
	}
	return b.String()
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprintf("%v", t)
	}
}
