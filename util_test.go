package zenohrpc

import (
	"sync"
	"testing"
	"time"
)

func TestQueryID(t *testing.T) {
	now := time.Now()
	id := NewQueryID()
	cost := time.Since(now)
	t.Log(id, cost)
}

func BenchmarkQueryID(b *testing.B) {
	var m sync.Map

	b.RunParallel(func(p *testing.PB) {
		for p.Next() {
			id := NewQueryID()
			if _, loaded := m.LoadOrStore(id, struct{}{}); loaded {
				b.Fatal()
			}
		}
	})
}
