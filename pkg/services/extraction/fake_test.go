package extraction

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"invoice-extractor/pkg/services/engine"
)

type fakeEngine struct {
	loadErr error
	index   *fakeIndex
	loads   atomic.Int32
}

func (f *fakeEngine) Load(context.Context, string) (engine.Index, error) {
	f.loads.Add(1)
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.index, nil
}

// fakeIndex answers by question; questions without an answer get "".
type fakeIndex struct {
	mu       sync.Mutex
	answers  map[string]string
	failures map[string]error
	panics   map[string]bool
	asked    []string
	inFlight atomic.Int32
	peak     atomic.Int32
	block    chan struct{}
}

func (f *fakeIndex) Query(ctx context.Context, question string) (string, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.asked = append(f.asked, question)
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.panics[question] {
		panic("engine exploded")
	}
	if err, ok := f.failures[question]; ok {
		return "", err
	}
	return f.answers[question], nil
}

func question(field string) string {
	for _, f := range Fields {
		if f.Name == field {
			return f.Question
		}
	}
	return ""
}

var errUpstream = errors.New("upstream unavailable")
