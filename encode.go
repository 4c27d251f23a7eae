package taskz

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Encode writes value as msgpack. taskz uses it for run snapshots; task
// payloads and final results encode the same way when a caller wants to
// keep them.
func Encode[T any](value T) ([]byte, error) {
	return msgpack.Marshal(value)
}

// Decode reads msgpack written by Encode back into a T.
func Decode[T any](data []byte) (T, error) {
	var value T
	err := msgpack.Unmarshal(data, &value)
	return value, err
}

// Snapshot is a serializable record of one pipeline run: the input, the
// final result if the listener got one, and every contract violation.
type Snapshot[I, F any] struct {
	Timestamp int64    `msgpack:"ts"`
	Input     I        `msgpack:"input"`
	Result    F        `msgpack:"result"`
	Name      Name     `msgpack:"name"`
	Outcome   string   `msgpack:"outcome"`
	Faults    []string `msgpack:"faults,omitempty"`
	Steps     int      `msgpack:"steps"`
	Resolved  bool     `msgpack:"resolved"`
}

// NewSnapshot records the run p just finished for input. err is the value
// Run returned; each joined violation becomes one entry in Faults.
func NewSnapshot[I, F any](p *Pipeline[I, F], input I, err error) Snapshot[I, F] {
	s := Snapshot[I, F]{
		Timestamp: p.getClock().Now().Unix(),
		Name:      p.Name(),
		Input:     input,
		Steps:     int(p.Metrics().Gauge(PipelineSteps).Value()),
	}
	if err == nil {
		return s
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			s.Faults = append(s.Faults, e.Error())
		}
		return s
	}
	s.Faults = []string{err.Error()}
	return s
}

// Resolve stores the final outcome the listener received.
func (s *Snapshot[I, F]) Resolve(outcome Outcome, result F) {
	s.Resolved = true
	s.Outcome = outcome.String()
	s.Result = result
}
