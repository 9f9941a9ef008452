package game

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	JournalBufferSize   = 512                    // Circular buffer size
	MaxJournalPerSec    = 2000                   // Global rate limit
	MaxJournalPerSource = 400                    // Per-source rate limit per second
	JournalFlushSize    = 64                     // Events per batch write
	JournalFlushEvery   = 250 * time.Millisecond // How often to flush
)

// Journal is a bounded, rate-limited, append-only record of what happened
// in a match. Emit never blocks the frame loop: when the writer falls
// behind the oldest pending events are overwritten and counted as dropped.
type Journal struct {
	buffer    [JournalBufferSize]Event
	writeHead uint64 // atomic
	readHead  uint64 // atomic
	bufMu     sync.Mutex

	globalLimiter  *rate.Limiter
	sourceLimiters sync.Map // map[string]*rate.Limiter

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	out   io.Writer
	file  *os.File
	outMu sync.Mutex

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
	writtenCount uint64 // atomic
}

// JournalStats is a point-in-time view of journal counters.
type JournalStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Written uint64 `json:"written"`
	Pending uint64 `json:"pending"`
	Running bool   `json:"running"`
}

// NewJournal creates a stopped journal.
func NewJournal() *Journal {
	return &Journal{
		globalLimiter: rate.NewLimiter(MaxJournalPerSec, MaxJournalPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start opens path for append and begins the async writer. An empty path
// keeps the journal running in memory only (events are counted, not
// written).
func (j *Journal) Start(path string) error {
	if j.running.Load() {
		return nil
	}
	if path != "" {
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		j.file = file
		j.out = file
	}
	j.startWriter()
	return nil
}

// StartWriter begins the async writer against an arbitrary sink.
func (j *Journal) StartWriter(w io.Writer) {
	if j.running.Load() {
		return
	}
	j.out = w
	j.startWriter()
}

func (j *Journal) startWriter() {
	j.running.Store(true)
	j.writerWg.Add(1)
	go j.writerLoop()
}

// Stop flushes pending events and closes the file. Safe to call twice.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		if !j.running.Swap(false) {
			return
		}
		close(j.stopChan)
		j.writerWg.Wait()

		j.outMu.Lock()
		if j.file != nil {
			j.file.Close()
			j.file = nil
		}
		j.outMu.Unlock()
	})
}

// Emit queues an event. Returns false if the journal is stopped or the
// event was rate limited.
func (j *Journal) Emit(event Event) bool {
	if !j.running.Load() {
		return false
	}
	if event.Source != "" && !j.sourceLimiter(event.Source).Allow() {
		atomic.AddUint64(&j.droppedCount, 1)
		return false
	}
	if !j.globalLimiter.Allow() {
		atomic.AddUint64(&j.droppedCount, 1)
		return false
	}

	j.bufMu.Lock()
	head := atomic.AddUint64(&j.writeHead, 1)
	tail := atomic.LoadUint64(&j.readHead)
	if head-tail > JournalBufferSize {
		atomic.AddUint64(&j.readHead, 1)
		atomic.AddUint64(&j.droppedCount, 1)
	}
	event.Sequence = head
	j.buffer[(head-1)%JournalBufferSize] = event
	j.bufMu.Unlock()

	atomic.AddUint64(&j.totalCount, 1)
	return true
}

// Record builds and queues an event in one call.
func (j *Journal) Record(eventType EventType, tick uint64, source string, payload interface{}) bool {
	return j.Emit(NewEvent(eventType, tick, source, payload))
}

// RecordOutcomes journals the shot spawns, hits and explosions in out.
func (j *Journal) RecordOutcomes(out []Outcome) {
	for _, o := range out {
		if ev, ok := OutcomeEvent(o); ok {
			j.Emit(ev)
		}
	}
}

func (j *Journal) sourceLimiter(source string) *rate.Limiter {
	if l, ok := j.sourceLimiters.Load(source); ok {
		return l.(*rate.Limiter)
	}
	l, _ := j.sourceLimiters.LoadOrStore(source, rate.NewLimiter(MaxJournalPerSource, MaxJournalPerSource/10))
	return l.(*rate.Limiter)
}

func (j *Journal) writerLoop() {
	defer j.writerWg.Done()

	ticker := time.NewTicker(JournalFlushEvery)
	defer ticker.Stop()

	batch := make([]Event, 0, JournalFlushSize)
	for {
		select {
		case <-j.stopChan:
			for {
				batch = j.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				j.flushBatch(batch)
			}
		case <-ticker.C:
			batch = j.collectBatch(batch[:0])
			if len(batch) > 0 {
				j.flushBatch(batch)
			}
		}
	}
}

func (j *Journal) collectBatch(batch []Event) []Event {
	j.bufMu.Lock()
	defer j.bufMu.Unlock()

	head := atomic.LoadUint64(&j.writeHead)
	tail := atomic.LoadUint64(&j.readHead)
	for i := tail; i < head && len(batch) < JournalFlushSize; i++ {
		batch = append(batch, j.buffer[i%JournalBufferSize])
	}
	if len(batch) > 0 {
		atomic.AddUint64(&j.readHead, uint64(len(batch)))
	}
	return batch
}

// flushBatch writes events as newline-delimited JSON. Events lost to a
// failing writer are counted as dropped rather than written.
func (j *Journal) flushBatch(batch []Event) {
	j.outMu.Lock()
	defer j.outMu.Unlock()

	if j.out == nil {
		return
	}
	w := bufio.NewWriter(j.out)
	var buffered uint64
	for i, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			atomic.AddUint64(&j.droppedCount, 1)
			continue
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			atomic.AddUint64(&j.droppedCount, buffered+uint64(len(batch)-i))
			return
		}
		buffered++
	}
	if err := w.Flush(); err != nil {
		atomic.AddUint64(&j.droppedCount, buffered)
		return
	}
	atomic.AddUint64(&j.writtenCount, buffered)
}

// Stats returns the journal counters.
func (j *Journal) Stats() JournalStats {
	head := atomic.LoadUint64(&j.writeHead)
	tail := atomic.LoadUint64(&j.readHead)
	return JournalStats{
		Total:   atomic.LoadUint64(&j.totalCount),
		Dropped: atomic.LoadUint64(&j.droppedCount),
		Written: atomic.LoadUint64(&j.writtenCount),
		Pending: head - tail,
		Running: j.running.Load(),
	}
}
