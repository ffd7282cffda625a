package batch

import (
	"context"
	"sync"

	"github.com/joseph-ayodele/xmm-lightcurves/constants"
)

// Snapshot is a point-in-time view of batch progress.
type Snapshot struct {
	Total     int
	Running   int
	Succeeded int
	Failed    int
}

func (s Snapshot) Done() bool { return s.Total > 0 && s.Succeeded+s.Failed == s.Total }

// Progress is a Listener that counts units by state.
type Progress struct {
	mu   sync.RWMutex
	snap Snapshot
}

var _ Listener = (*Progress)(nil)

func NewProgress(total int) *Progress {
	return &Progress{snap: Snapshot{Total: total}}
}

func (p *Progress) UnitStarted(context.Context, string) {
	p.mu.Lock()
	p.snap.Running++
	p.mu.Unlock()
}

func (p *Progress) UnitFinished(_ context.Context, res UnitResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Running--
	if res.Status == constants.TaskStatusSucceeded {
		p.snap.Succeeded++
	} else {
		p.snap.Failed++
	}
}

func (p *Progress) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}
