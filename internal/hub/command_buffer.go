package hub

import (
	"sync"

	"spool/server/internal/telemetry"
)

const (
	commandBufferOccupancyMetricKey = "hub_command_buffer_occupancy"
	commandBufferOverflowMetricKey  = "hub_command_buffer_overflow_total"
)

// commandBuffer stores staged commands in a ring. It is safe for concurrent
// producers and a single consumer. Input commands are bounded by the initial
// capacity; lifecycle commands grow the ring instead of being dropped.
type commandBuffer struct {
	mu       sync.Mutex
	data     []command
	head     int
	tail     int
	count    int
	capacity int
	metrics  telemetry.Metrics
}

func newCommandBuffer(capacity int, metrics telemetry.Metrics) *commandBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &commandBuffer{
		data:     make([]command, capacity),
		capacity: capacity,
		metrics:  metrics,
	}
}

// Push stages a command, returning false if an input command found the buffer
// full.
func (b *commandBuffer) Push(cmd command) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cmd.kind.lifecycle() {
		if b.count == len(b.data) {
			b.growLocked()
		}
	} else if b.count >= b.capacity {
		if b.metrics != nil {
			b.metrics.Add(commandBufferOverflowMetricKey, 1)
		}
		return false
	}
	b.data[b.tail] = cmd
	b.tail = (b.tail + 1) % len(b.data)
	b.count++
	b.storeOccupancyLocked()
	return true
}

func (b *commandBuffer) growLocked() {
	grown := make([]command, len(b.data)*2)
	for i := 0; i < b.count; i++ {
		grown[i] = b.data[(b.head+i)%len(b.data)]
	}
	b.data = grown
	b.head = 0
	b.tail = b.count
}

// Drain returns all staged commands in FIFO order and clears the buffer.
func (b *commandBuffer) Drain() []command {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.count == 0 {
		return nil
	}
	commands := make([]command, b.count)
	for i := 0; i < b.count; i++ {
		idx := (b.head + i) % len(b.data)
		commands[i] = b.data[idx]
		b.data[idx] = command{}
	}
	if len(b.data) > b.capacity*4 {
		b.data = make([]command, b.capacity)
	}
	b.head = 0
	b.tail = 0
	b.count = 0
	b.storeOccupancyLocked()
	return commands
}

func (b *commandBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *commandBuffer) storeOccupancyLocked() {
	if b.metrics == nil {
		return
	}
	b.metrics.Store(commandBufferOccupancyMetricKey, uint64(b.count))
}
