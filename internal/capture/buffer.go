package capture

import (
	"sync"
	"time"
)

// Chunk is one fixed-cadence slice of captured PCM.
type Chunk struct {
	Seq int
	PCM []int16
	At  time.Time
}

// ChunkBuffer is a bounded rolling buffer of recent chunks. Insertion
// evicts the oldest once full. Windows are read non-destructively; the
// recorder is the only writer.
type ChunkBuffer struct {
	mu     sync.Mutex
	max    int
	chunks []Chunk
	seq    int
}

// NewChunkBuffer creates a buffer holding at most max chunks.
func NewChunkBuffer(max int) *ChunkBuffer {
	if max <= 0 {
		max = 10
	}
	return &ChunkBuffer{max: max}
}

// Append adds a chunk of PCM, evicting the oldest when the buffer is full,
// and returns the stored chunk.
func (b *ChunkBuffer) Append(pcm []int16, at time.Time) Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	chunk := Chunk{Seq: b.seq, PCM: pcm, At: at}
	b.chunks = append(b.chunks, chunk)
	if len(b.chunks) > b.max {
		b.chunks = b.chunks[len(b.chunks)-b.max:]
	}
	return chunk
}

// Len returns the number of buffered chunks.
func (b *ChunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Chunks returns a snapshot of the buffered chunks in arrival order.
func (b *ChunkBuffer) Chunks() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Chunk, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Window concatenates the PCM of the most recent n chunks, oldest first.
// Returns nil until n chunks have accumulated. The buffer is unchanged.
func (b *ChunkBuffer) Window(n int) []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n <= 0 || len(b.chunks) < n {
		return nil
	}

	total := 0
	tail := b.chunks[len(b.chunks)-n:]
	for _, c := range tail {
		total += len(c.PCM)
	}

	out := make([]int16, 0, total)
	for _, c := range tail {
		out = append(out, c.PCM...)
	}
	return out
}

// Reset drops all buffered chunks.
func (b *ChunkBuffer) Reset() {
	b.mu.Lock()
	b.chunks = nil
	b.mu.Unlock()
}
