package engine

import (
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Record is one append-only execution log entry.
type Record struct {
	ID         string                 `json:"id"`
	ToolID     string                 `json:"tool_id"`
	ProviderID string                 `json:"provider_id,omitempty"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Data       interface{}            `json:"data,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Success    bool                   `json:"success"`
	StartTime  time.Time              `json:"start_time"`
	EndTime    time.Time              `json:"end_time"`
}

// recordLog is a bounded ring buffer of execution records; when full the
// oldest entry is dropped first. Length never exceeds max.
type recordLog struct {
	mu    sync.Mutex
	buf   []Record
	start int
	count int
}

func newRecordLog(max int) *recordLog {
	return &recordLog{buf: make([]Record, max)}
}

func (l *recordLog) append(rec Record) {
	if rec.ID == "" {
		id, _ := gonanoid.New()
		rec.ID = id
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count < len(l.buf) {
		l.buf[(l.start+l.count)%len(l.buf)] = rec
		l.count++
		return
	}
	l.buf[l.start] = rec
	l.start = (l.start + 1) % len(l.buf)
}

// snapshot returns the records oldest first.
func (l *recordLog) snapshot() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Record, 0, l.count)
	for i := 0; i < l.count; i++ {
		out = append(out, l.buf[(l.start+i)%len(l.buf)])
	}
	return out
}

func (l *recordLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
