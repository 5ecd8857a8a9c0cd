package live

import (
	"sync"

	"rosterd/internal/docstore"
)

// Doc watches one document. onNext fires with the current value immediately
// and on every committed change; a missing document surfaces as a not_found
// error on onErr and terminates the watch per the subscription contract.
type Doc struct {
	mu      sync.Mutex
	cancel  docstore.CancelFunc
	stopped bool
}

// NewDoc starts watching collection/id.
func NewDoc(store docstore.Store, collection, id string, onNext func(docstore.Snapshot), onErr func(error)) *Doc {
	d := &Doc{}
	d.cancel = store.Subscribe(collection, id, func(snap docstore.Snapshot) {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			onNext(snap)
		}
	}, func(err error) {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped {
			onErr(err)
		}
	})
	return d
}

// Stop releases the subscription. No callbacks fire after it returns. Must
// not be called from inside the callbacks.
func (d *Doc) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	cancel := d.cancel
	d.mu.Unlock()
	cancel()
}
