package machine

import (
	"io"

	"github.com/sasha-s/go-deadlock"
)

// inputQueue buffers console input read from the host by a background
// goroutine until the kernel polls it.
type inputQueue struct {
	mu   deadlock.Mutex
	data []byte
}

func newInputQueue() *inputQueue {
	return &inputQueue{}
}

// fill copies r into the queue until r is exhausted.
func (q *inputQueue) fill(r io.Reader) {
	buf := make([]byte, 256)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			q.push(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (q *inputQueue) push(p []byte) {
	q.mu.Lock()
	q.data = append(q.data, p...)
	q.mu.Unlock()
}

// pop returns the next input byte or -1 if none is buffered.
func (q *inputQueue) pop() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.data) == 0 {
		return -1
	}
	c := q.data[0]
	q.data = q.data[1:]
	return int(c)
}
