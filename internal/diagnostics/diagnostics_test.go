package diagnostics

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLevelForVerbosity(t *testing.T) {
	require.Equal(t, logrus.WarnLevel, LevelForVerbosity(0))
	require.Equal(t, logrus.InfoLevel, LevelForVerbosity(1))
	require.Equal(t, logrus.DebugLevel, LevelForVerbosity(2))
	require.Equal(t, logrus.TraceLevel, LevelForVerbosity(3))
	require.Equal(t, logrus.TraceLevel, LevelForVerbosity(99))
}

func TestFormatterProducesTrailingNewline(t *testing.T) {
	f := &Formatter{}
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Message: "guessed subkey",
		Data:    logrus.Fields{"round": 4},
		Level:   logrus.InfoLevel,
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	require.Contains(t, string(out), "guessed subkey")
	require.Contains(t, string(out), "round=4")
	require.True(t, len(out) > 0 && out[len(out)-1] == '\n')
}
