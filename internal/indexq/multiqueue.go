package indexq

import (
	"time"

	"github.com/G-Research/indexq/internal/indexq/bridge"
	"github.com/G-Research/indexq/internal/indexq/buffer"
)

// GetMultiQueue returns a started Bridge that many goroutines can Put records into. The bridge's consumer
// owns a buffer of its own, sized like the queue's, that writes to the same todo directory. Call Close, or
// Put bridge.Stop and Join, to flush what is left.
func (q *Queue) GetMultiQueue(capacity int, idleWait time.Duration) *bridge.Bridge {
	b := bridge.New(
		buffer.NewExclusive(q.store, q.bufferSize, q.fillRatio, q.metrics),
		bridge.Options{Capacity: capacity, IdleWait: idleWait},
	)
	b.Start()
	return b
}
