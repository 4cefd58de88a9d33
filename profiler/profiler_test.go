package profiler

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordDuration(t *testing.T) {
	p := New()
	p.RecordDuration("inference", 30*time.Millisecond)
	p.RecordDuration("inference", 10*time.Millisecond)
	p.RecordDuration("inference", 20*time.Millisecond)

	s, ok := p.Timing("inference")
	require.True(t, ok)
	assert.Equal(t, int64(3), s.Count)
	assert.Equal(t, 10*time.Millisecond, s.Min)
	assert.Equal(t, 30*time.Millisecond, s.Max)
	assert.Equal(t, 20*time.Millisecond, s.Mean())

	_, ok = p.Timing("missing")
	assert.False(t, ok)
	assert.Equal(t, time.Duration(0), TimeStats{}.Mean())
}

func TestStartOperation(t *testing.T) {
	p := New()
	clock := time.Unix(0, 0)
	p.now = func() time.Time {
		clock = clock.Add(5 * time.Millisecond)
		return clock
	}

	stop := p.StartOperation("visualize")
	stop()

	s, ok := p.Timing("visualize")
	require.True(t, ok)
	assert.Equal(t, 5*time.Millisecond, s.Total)
}

func TestRecordMetric(t *testing.T) {
	p := New()
	for _, v := range []float64{2, 0, 4} {
		p.RecordMetric("detections", v)
	}

	s, ok := p.Metric("detections")
	require.True(t, ok)
	assert.Equal(t, int64(3), s.Count)
	assert.Equal(t, 0.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, 2.0, s.Mean())
}

func TestLog(t *testing.T) {
	p := New()
	p.RecordDuration("visualize", time.Second)
	p.RecordDuration("inference", time.Second)
	p.RecordMetric("drawn", 1)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	p.Log(logger)

	require.Len(t, hook.Entries, 4)
	assert.Equal(t, "inference", hook.Entries[0].Data["operation"])
	assert.Equal(t, "visualize", hook.Entries[1].Data["operation"])
	assert.Equal(t, "drawn", hook.Entries[2].Data["metric"])
	assert.Equal(t, logrus.DebugLevel, hook.Entries[3].Level)
}
