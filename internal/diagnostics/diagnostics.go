// Package diagnostics configures structured logging for a recovery run:
// a verbosity level picked on the command line maps to a logrus level,
// and a custom formatter renders entries the way an interactive
// terminal session wants to read them.
package diagnostics

import (
	"bytes"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Formatter renders a logrus.Entry as a timestamped, colored line
// followed by its structured fields in brackets.
type Formatter struct{}

var symbolTable = map[logrus.Level]string{
	logrus.DebugLevel: "*",
	logrus.InfoLevel:  ">",
	logrus.WarnLevel:  "!",
	logrus.ErrorLevel: "x",
	logrus.FatalLevel: "X",
	logrus.PanicLevel: "#",
}

var colorTable = map[logrus.Level]int{
	logrus.DebugLevel: 36, // cyan
	logrus.InfoLevel:  32, // green
	logrus.WarnLevel:  33, // yellow
	logrus.ErrorLevel: 31, // red
	logrus.FatalLevel: 35, // magenta
	logrus.PanicLevel: 41, // bg red
}

func colorEscape(level logrus.Level) []byte {
	return []byte(fmt.Sprintf("\033[0;%dm", colorTable[level]))
}

var resetEscape = []byte("\033[0m")

func formatTimestamp(buffer *bytes.Buffer, t time.Time) {
	fmt.Fprintf(buffer, "%02d:%02d:%02d.%03d", t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1e6)
}

func formatFields(buffer *bytes.Buffer, entry *logrus.Entry) {
	if len(entry.Data) == 0 {
		return
	}

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}

	buffer.WriteString(" [")
	for idx, key := range keys {
		buffer.Write(colorEscape(entry.Level))
		buffer.WriteString(key)
		buffer.WriteByte('=')
		fmt.Fprintf(buffer, "%v", entry.Data[key])
		buffer.Write(resetEscape)

		if idx != len(keys)-1 {
			buffer.WriteByte(' ')
		}
	}
	buffer.WriteByte(']')
}

// Format implements logrus.Formatter.
func (*Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	buffer := bytes.Buffer{}

	buffer.Write(colorEscape(entry.Level))
	formatTimestamp(&buffer, entry.Time)
	buffer.WriteByte(' ')
	buffer.WriteString(symbolTable[entry.Level])
	buffer.Write(resetEscape)

	buffer.WriteByte(' ')
	buffer.WriteString(entry.Message)

	formatFields(&buffer, entry)

	buffer.WriteByte('\n')
	return buffer.Bytes(), nil
}

// LevelForVerbosity maps the CLI's -v level (0..3) to a logrus level:
// 0 only surfaces warnings and worse, 1 turns on per-phase info lines,
// 2 turns on per-trail summaries, 3 turns on the per-round trace inside
// trail search.
func LevelForVerbosity(v int) logrus.Level {
	switch {
	case v <= 0:
		return logrus.WarnLevel
	case v == 1:
		return logrus.InfoLevel
	case v == 2:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

// New builds a logger configured for verbosity v, writing to logrus's
// default stderr output with Formatter installed.
func New(v int) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&Formatter{})
	log.SetLevel(LevelForVerbosity(v))
	return log
}
