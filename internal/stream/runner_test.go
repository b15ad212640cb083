package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"anpr-pipeline/internal/domain/anpr"
)

type recordingReporter struct {
	mu       sync.Mutex
	readings []anpr.Reading
	block    chan struct{}
}

func (r *recordingReporter) ReportReading(_ context.Context, reading anpr.Reading) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings = append(r.readings, reading)
	return nil
}

func (r *recordingReporter) plates() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.readings))
	for _, reading := range r.readings {
		out = append(out, reading.Plate)
	}
	return out
}

func TestReporterForwardsInOrder(t *testing.T) {
	rep := &recordingReporter{}
	r := NewRunner(nil, rep, Config{CameraID: "gate-1"}, zerolog.Nop())

	ch := r.startReporter(context.Background())
	r.enqueue(ch, anpr.Reading{Plate: "ABC-12-34"})
	r.enqueue(ch, anpr.Reading{Plate: "A12-BCD"})
	close(ch)

	assert.Eventually(t, func() bool {
		return len(rep.plates()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"ABC-12-34", "A12-BCD"}, rep.plates())
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	rep := &recordingReporter{block: make(chan struct{})}
	r := NewRunner(nil, rep, Config{}, zerolog.Nop())

	ch := r.startReporter(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 64; i++ {
			r.enqueue(ch, anpr.Reading{Plate: "MNR-952-A"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a stalled reporter")
	}

	close(rep.block)
	close(ch)
	assert.Eventually(t, func() bool {
		n := len(rep.plates())
		return n > 0 && n < 64
	}, time.Second, 5*time.Millisecond)
}

func TestReporterWithoutSink(t *testing.T) {
	r := NewRunner(nil, nil, Config{}, zerolog.Nop())
	ch := r.startReporter(context.Background())
	r.enqueue(ch, anpr.Reading{Plate: "ABC-12-34"})
	close(ch)
}
