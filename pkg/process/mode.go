package process

import (
	"encoding/json"
	"strings"

	"github.com/charmbracelet/log"
)

// Mode selects how stdout lines are classified.
type Mode int

const (
	// ModePlain logs every stdout line at info.
	ModePlain Mode = iota
	// ModeJSON decodes "{"-prefixed stdout lines as {type, data} records.
	ModeJSON
)

func (m Mode) String() string {
	if m == ModeJSON {
		return "json"
	}
	return "plain"
}

// record is one structured log line.
type record struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// levels maps record types to log levels. Unknown types log at info.
var levels = map[string]log.Level{
	"info":    log.InfoLevel,
	"warning": log.DebugLevel,
	"error":   log.WarnLevel,
}

// stdoutHandler returns the per-line classifier for mode.
func stdoutHandler(mode Mode, logger *log.Logger) func(string) {
	if mode != ModeJSON {
		return func(line string) {
			if strings.TrimSpace(line) != "" {
				logger.Info(line)
			}
		}
	}
	return func(line string) {
		if strings.TrimSpace(line) == "" {
			return
		}
		if !strings.HasPrefix(line, "{") {
			logger.Info(line)
			return
		}
		var r record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			logger.Warn(line, "err", err)
			return
		}
		level, ok := levels[r.Type]
		if !ok {
			level = log.InfoLevel
		}
		logger.Log(level, message(r.Data))
	}
}

// stderrHandler logs every line as a warning.
func stderrHandler(logger *log.Logger) func(string) {
	return func(line string) {
		if strings.TrimSpace(line) != "" {
			logger.Warn(line)
		}
	}
}

// message renders a record payload: strings unquoted, anything else as JSON.
func message(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return string(data)
}
