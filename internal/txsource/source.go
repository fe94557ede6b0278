// Package txsource supplies opaque transaction batches to the creator
// loop, matching spec §6's "tx_source(address, queue)" contract: a
// producer goroutine pushes batches of byte-string transactions into a
// bounded queue.
package txsource

import "context"

// QueueCapacity is the bounded transaction queue size named in spec §6.
const QueueCapacity = 1000

// Source produces batches of opaque transactions until ctx is cancelled.
type Source interface {
	// Run pushes transaction batches into out until ctx is done or the
	// source is exhausted. It must close nothing; the queue outlives a
	// single source's lifetime only by convention of this implementation.
	Run(ctx context.Context, out chan<- [][]byte)
}

// NewQueue returns a channel sized per QueueCapacity, used to decouple a
// Source from the creator loop that drains it.
func NewQueue() chan [][]byte {
	return make(chan [][]byte, QueueCapacity)
}
