package metrics

import "sync"

// Usage counts requests, delivered chunks and outcomes. Safe for
// concurrent use; one value may be shared by many requests.
type Usage struct {
	mu       sync.Mutex
	requests int
	chunks   int
	outcomes map[string]int
}

// Snapshot is a point-in-time copy of Usage.
type Snapshot struct {
	Requests int
	Chunks   int
	Outcomes map[string]int
}

func (u *Usage) Start() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.requests++
}

func (u *Usage) AddChunks(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.chunks += n
}

// Settle records how a request ended, e.g. "succeeded" or an error name.
func (u *Usage) Settle(outcome string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.outcomes == nil {
		u.outcomes = make(map[string]int)
	}
	u.outcomes[outcome]++
}

func (u *Usage) Snapshot() Snapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	s := Snapshot{Requests: u.requests, Chunks: u.chunks, Outcomes: make(map[string]int, len(u.outcomes))}
	for k, v := range u.outcomes {
		s.Outcomes[k] = v
	}
	return s
}
