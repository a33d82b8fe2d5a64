package poller

import "sync"

// Latest drops views that arrive after a newer view of the same source. Consumers
// behind a concurrent dispatcher use it to keep the order the poller applied.
// The zero value is ready to use.
type Latest struct {
	mu   sync.Mutex
	seqs map[string]uint64
}

// Apply runs fn with v unless a view with a higher Seq from the same source was
// already applied. fn runs under the lock, so calls for one Latest never overlap.
func (l *Latest) Apply(v View, fn func(View)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.seqs == nil {
		l.seqs = make(map[string]uint64)
	}
	if seen, ok := l.seqs[v.Name]; ok && v.Seq < seen {
		return false
	}
	l.seqs[v.Name] = v.Seq
	fn(v)
	return true
}
