package progress

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
)

// Options configures the progress tracker.
type Options struct {
	// Workers is the number of transfer slots, one per worker.
	Workers int

	// Completed seeds the items counter with records already done.
	Completed int

	// Total is the number of items the run is expected to complete.
	Total int

	// Output is where the terminal bar is drawn.
	// Default: os.Stdout
	Output io.Writer

	// Visible enables the terminal bar. Counting happens either way.
	Visible bool

	// Logger receives rendering errors at debug level.
	Logger *slog.Logger
}

// Transfer is the state of one worker's current download.
type Transfer struct {
	Worker int    `json:"worker"`
	Name   string `json:"name,omitempty"`
	Bytes  int64  `json:"bytes"`
	Total  int64  `json:"total"`
	Active bool   `json:"active"`
}

// Snapshot is a point-in-time view of run progress.
type Snapshot struct {
	Completed int64      `json:"completed"`
	Total     int64      `json:"total"`
	Bytes     int64      `json:"bytes"`
	Rate      int64      `json:"bytes_per_second"`
	Elapsed   string     `json:"elapsed"`
	Transfers []Transfer `json:"transfers"`
}

// Tracker aggregates byte and item progress across workers. It is purely
// observational: none of its methods fail or block on rendering.
type Tracker struct {
	opts Options

	completed atomic.Int64
	total     atomic.Int64
	bytes     atomic.Int64
	startTime time.Time

	mu    sync.Mutex
	slots []Transfer

	bar          *progressbar.ProgressBar
	lastDescribe atomic.Int64
}

const describeInterval = 250 * time.Millisecond

// NewTracker creates a tracker with one transfer slot per worker.
func NewTracker(opts Options) *Tracker {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	t := &Tracker{
		opts:      opts,
		slots:     make([]Transfer, opts.Workers),
		startTime: time.Now(),
	}
	for i := range t.slots {
		t.slots[i].Worker = i
	}
	t.completed.Store(int64(opts.Completed))
	t.total.Store(int64(opts.Total))

	if opts.Visible {
		t.bar = progressbar.NewOptions64(int64(opts.Total),
			progressbar.OptionSetWriter(opts.Output),
			progressbar.OptionSetDescription("Progress"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("items"),
			progressbar.OptionShowIts(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionThrottle(100*time.Millisecond),
		)
		t.render(t.bar.Set64(int64(opts.Completed)))
	}

	return t
}

func (t *Tracker) render(err error) {
	if err != nil {
		t.opts.Logger.Debug("progress render failed", "error", err)
	}
}

// TransferStarted resets a worker's slot for a new download.
func (t *Tracker) TransferStarted(worker int, name string, total int64) {
	t.mu.Lock()
	if worker >= 0 && worker < len(t.slots) {
		t.slots[worker] = Transfer{Worker: worker, Name: name, Total: total, Active: true}
	}
	t.mu.Unlock()

	t.describe(worker, true)
}

// TransferProgress adds n downloaded bytes to a worker's slot.
func (t *Tracker) TransferProgress(worker int, n int64) {
	t.bytes.Add(n)

	t.mu.Lock()
	if worker >= 0 && worker < len(t.slots) {
		t.slots[worker].Bytes += n
	}
	t.mu.Unlock()

	t.describe(worker, false)
}

// describe shows a worker's transfer and the overall byte rate in the bar
// description, at most once per describeInterval unless forced.
func (t *Tracker) describe(worker int, force bool) {
	if t.bar == nil || worker < 0 || worker >= len(t.slots) {
		return
	}

	now := time.Now().UnixNano()
	if !force && now-t.lastDescribe.Load() < int64(describeInterval) {
		return
	}
	t.lastDescribe.Store(now)

	t.mu.Lock()
	tr := t.slots[worker]
	t.mu.Unlock()

	t.bar.Describe(describeTransfer(tr, t.rate()))
}

func (t *Tracker) rate() int64 {
	elapsed := time.Since(t.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return int64(float64(t.bytes.Load()) / elapsed)
}

func describeTransfer(tr Transfer, rate int64) string {
	size := FormatBytes(tr.Bytes)
	if tr.Total >= 0 {
		size += "/" + FormatBytes(tr.Total)
	}
	return fmt.Sprintf("Progress [%d] %s %s | %s/s", tr.Worker, tr.Name, size, FormatBytes(rate))
}

// TransferFinished marks a worker's slot idle.
func (t *Tracker) TransferFinished(worker int) {
	t.mu.Lock()
	if worker >= 0 && worker < len(t.slots) {
		t.slots[worker].Active = false
	}
	t.mu.Unlock()
}

// ItemCompleted increments the shared items counter.
func (t *Tracker) ItemCompleted() {
	t.completed.Add(1)
	if t.bar != nil {
		t.render(t.bar.Add(1))
	}
}

// Completed returns the items counter.
func (t *Tracker) Completed() int64 {
	return t.completed.Load()
}

// Total returns the number of items expected.
func (t *Tracker) Total() int64 {
	return t.total.Load()
}

// Snapshot returns a copy of the current progress.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	transfers := make([]Transfer, len(t.slots))
	copy(transfers, t.slots)
	t.mu.Unlock()

	return Snapshot{
		Completed: t.completed.Load(),
		Total:     t.total.Load(),
		Bytes:     t.bytes.Load(),
		Rate:      t.rate(),
		Elapsed:   time.Since(t.startTime).Round(time.Second).String(),
		Transfers: transfers,
	}
}

// Close stops the terminal bar, leaving it at the last completed count.
func (t *Tracker) Close() {
	if t.bar == nil {
		return
	}
	if t.completed.Load() >= t.total.Load() {
		t.render(t.bar.Finish())
	} else {
		t.render(t.bar.Exit())
	}
	fmt.Fprintln(t.opts.Output)
}

// Sink adapts a worker slot to the downloader's progress callbacks.
func (t *Tracker) Sink(worker int) *Sink {
	return &Sink{tracker: t, worker: worker}
}

// Sink reports a single worker's transfer progress.
type Sink struct {
	tracker *Tracker
	worker  int
}

// Start begins a transfer of total bytes (-1 if unknown).
func (s *Sink) Start(name string, total int64) {
	s.tracker.TransferStarted(s.worker, name, total)
}

// Add records n more bytes written.
func (s *Sink) Add(n int64) {
	s.tracker.TransferProgress(s.worker, n)
}

// Done marks the transfer finished, successfully or not.
func (s *Sink) Done() {
	s.tracker.TransferFinished(s.worker)
}

// FormatBytes renders a byte count for humans, e.g. "1.5 MiB".
func FormatBytes(b int64) string {
	if b < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(b))
}
