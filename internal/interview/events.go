package interview

import "sync"

const (
	EventProgress = "progress"
	EventError    = "error"
)

const (
	StagePrepare    = "prepare"
	StageGenerating = "generating"
	StageSaving     = "saving"
	StageDone       = "done"
)

// ProgressEvent is one frame on a quiz progress stream. Progress values are
// fixed checkpoints, not measured completion.
type ProgressEvent struct {
	Type     string  `json:"type"`
	Progress float64 `json:"progress"`
	Label    string  `json:"label,omitempty"`
	Stage    string  `json:"stage,omitempty"`
	Data     any     `json:"data,omitempty"`
	Message  string  `json:"message,omitempty"`
}

// Emitter is the single-producer single-consumer progress channel bound to
// one quiz run. Exactly one terminal event ends the stream (done at
// progress 1 or an error), the channel closes immediately after it, and
// later sends are dropped. Progress never decreases.
type Emitter struct {
	mu       sync.Mutex
	ch       chan ProgressEvent
	last     float64
	terminal bool
}

// The buffer holds every checkpoint of one run, so a producer never blocks
// on a consumer that has gone away.
const emitterBuffer = 16

func newEmitter() *Emitter {
	return &Emitter{ch: make(chan ProgressEvent, emitterBuffer)}
}

// Events returns the consumer side of the stream.
func (e *Emitter) Events() <-chan ProgressEvent {
	return e.ch
}

// Progress emits a non-terminal checkpoint. Values below the previous
// checkpoint are raised to keep the stream monotonic.
func (e *Emitter) Progress(progress float64, label, stage string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal {
		return
	}
	if progress < e.last {
		progress = e.last
	}
	e.last = progress
	e.send(ProgressEvent{Type: EventProgress, Progress: progress, Label: label, Stage: stage})
}

// Done emits the terminal success event at progress 1 and closes the stream.
func (e *Emitter) Done(label string, data any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal {
		return
	}
	e.terminal = true
	e.last = 1
	e.send(ProgressEvent{Type: EventProgress, Progress: 1, Label: label, Stage: StageDone, Data: data})
	close(e.ch)
}

// Fail emits the terminal error event and closes the stream.
func (e *Emitter) Fail(message string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.terminal {
		return
	}
	e.terminal = true
	e.send(ProgressEvent{Type: EventError, Progress: e.last, Message: message})
	close(e.ch)
}

func (e *Emitter) send(ev ProgressEvent) {
	select {
	case e.ch <- ev:
	default:
		// Buffer full means the consumer is gone; drop rather than block the run.
	}
}
