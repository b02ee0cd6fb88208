package coordinator

import (
	"io"
	"strconv"
	"sync"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/shm-counter/api"
)

// ConsoleReporter prints the progress lines of one participant:
//
//	Process 1 started. Counting from 1 to 1000...
//	Process 1 wrote: 17
//	Process 1 finished!
type ConsoleReporter struct {
	mu     sync.Mutex
	out    io.Writer
	number int
}

var _ api.Reporter = (*ConsoleReporter)(nil)

// NewConsoleReporter writes lines for process number to out.
func NewConsoleReporter(out io.Writer, number int) *ConsoleReporter {
	return &ConsoleReporter{out: out, number: number}
}

func (r *ConsoleReporter) Started(target int32) {
	r.line(func(b *bytebufferpool.ByteBuffer) {
		b.B = append(b.B, " started. Counting from 1 to "...)
		b.B = strconv.AppendInt(b.B, int64(target), 10)
		b.B = append(b.B, "..."...)
	})
}

func (r *ConsoleReporter) Wrote(value int32) {
	r.line(func(b *bytebufferpool.ByteBuffer) {
		b.B = append(b.B, " wrote: "...)
		b.B = strconv.AppendInt(b.B, int64(value), 10)
	})
}

func (r *ConsoleReporter) Finished() {
	r.line(func(b *bytebufferpool.ByteBuffer) {
		b.B = append(b.B, " finished!"...)
	})
}

func (r *ConsoleReporter) line(body func(b *bytebufferpool.ByteBuffer)) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	buf.B = append(buf.B, "Process "...)
	buf.B = strconv.AppendInt(buf.B, int64(r.number), 10)
	body(buf)
	buf.B = append(buf.B, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()
	// progress lines are informational; a closed stdout must not stop the loop
	_, _ = r.out.Write(buf.B)
}

type nopReporter struct{}

func (nopReporter) Started(int32) {}
func (nopReporter) Wrote(int32)   {}
func (nopReporter) Finished()     {}
