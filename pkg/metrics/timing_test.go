package metrics

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/vanderheijden86/slidetree/pkg/debug"
)

func TestTimingMetricRecord(t *testing.T) {
	m := newTimingMetric("test")
	m.Record(2 * time.Millisecond)
	m.Record(4 * time.Millisecond)

	s := m.Stats()
	if s.Count != 2 {
		t.Errorf("expected count 2, got %d", s.Count)
	}
	if s.MinMs != 2 || s.MaxMs != 4 || s.AvgMs != 3 {
		t.Errorf("unexpected stats: %+v", s)
	}

	m.Reset()
	if m.Count() != 0 {
		t.Errorf("expected reset count 0, got %d", m.Count())
	}
}

func TestDisabledSkipsRecording(t *testing.T) {
	SetEnabled(false)
	defer SetEnabled(true)

	m := newTimingMetric("off")
	Timer(m)()
	c := newCounterMetric("off")
	c.Add(3)

	if m.Count() != 0 || c.Value() != 0 {
		t.Errorf("expected nothing recorded while disabled")
	}
}

func TestWriteJSON(t *testing.T) {
	SetEnabled(true)
	ResetAll()
	defer ResetAll()

	Timer(Distribute)()
	ImagesFound.Add(7)

	var buf bytes.Buffer
	if err := WriteJSON(&buf); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"distribute"`) {
		t.Errorf("expected distribute timing in output: %s", out)
	}
	if !strings.Contains(out, `"images_found": 7`) {
		t.Errorf("expected images_found counter in output: %s", out)
	}
}

func TestTimerTracesWhenDebugging(t *testing.T) {
	var buf bytes.Buffer
	debug.SetOutput(&buf)
	debug.SetEnabled(true)
	t.Cleanup(func() { debug.SetEnabled(false) })

	m := newTimingMetric("traced_step")
	Timer(m)()

	if m.Count() != 1 {
		t.Errorf("expected one sample, got %d", m.Count())
	}
	if !strings.Contains(buf.String(), "traced_step") {
		t.Errorf("expected the step in the trace, got %q", buf.String())
	}
}
