package runner

import (
	"time"

	"github.com/musher-dev/scriptdeck/internal/history"
)

// OutputEvent carries one chunk of raw child output.
type OutputEvent struct {
	ScriptID int64
	RunID    int64
	Stream   string
	Data     []byte
	At       time.Time
}

// FinishedEvent is emitted exactly once per run, after its record is
// finalized.
type FinishedEvent struct {
	ScriptID int64
	RunID    int64
	ExitCode int
	Status   history.Status
	TimedOut bool
}

// Sink receives run events. Output may be called from several goroutines
// at once; Finished for a run is never followed by Output for that run.
type Sink interface {
	Output(OutputEvent)
	Finished(FinishedEvent)
}

// MultiSink fans events out to every sink in order.
type MultiSink []Sink

// Output implements Sink.
func (m MultiSink) Output(ev OutputEvent) {
	for _, s := range m {
		if s != nil {
			s.Output(ev)
		}
	}
}

// Finished implements Sink.
func (m MultiSink) Finished(ev FinishedEvent) {
	for _, s := range m {
		if s != nil {
			s.Finished(ev)
		}
	}
}

// SinkFuncs adapts plain functions to a Sink. Nil fields are skipped.
type SinkFuncs struct {
	OnOutput   func(OutputEvent)
	OnFinished func(FinishedEvent)
}

// Output implements Sink.
func (f SinkFuncs) Output(ev OutputEvent) {
	if f.OnOutput != nil {
		f.OnOutput(ev)
	}
}

// Finished implements Sink.
func (f SinkFuncs) Finished(ev FinishedEvent) {
	if f.OnFinished != nil {
		f.OnFinished(ev)
	}
}

type discardSink struct{}

func (discardSink) Output(OutputEvent)     {}
func (discardSink) Finished(FinishedEvent) {}
