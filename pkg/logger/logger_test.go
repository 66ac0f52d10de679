package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatRFC3339Millis(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	ts := time.Date(2025, 3, 1, 10, 4, 5, 123_456_789, paris)
	require.Equal(t, "2025-03-01T09:04:05.123Z", formatRFC3339Millis(ts))
}

func TestNew_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false)
	log.Debug("hidden")
	log.Info("shown", "analysis_date", "2025-03-01", "empty", "")
	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "shown")
	require.Contains(t, out, "analysis_date=2025-03-01")
	require.NotContains(t, out, "empty=")

	buf.Reset()
	New(&buf, true).Debug("visible")
	require.Contains(t, buf.String(), "visible")
}
