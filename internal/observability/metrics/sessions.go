package metrics

import (
	"time"

	obserrors "github.com/target/docauth/internal/observability/errors"
	"github.com/target/docauth/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// SessionMetric captures one session engine operation for metric emission.
type SessionMetric struct {
	Operation string
	Provider  string
	Result    string
	Duration  time.Duration
	Err       error
}

// EmitSessionOp emits standardised session operation metrics.
func EmitSessionOp(sink statsd.Sink, in SessionMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"operation": in.Operation,
		"result":    in.Result,
	}
	if in.Provider != "" {
		tags["provider"] = in.Provider
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("session.operation", 1, tags)

	if in.Duration > 0 {
		sink.Timing("session.duration", in.Duration, CloneTags(tags))
	}
}

// SweepMetric summarizes one background sweep.
type SweepMetric struct {
	Task     string
	Removed  int
	Skipped  int
	Duration time.Duration
	Err      error
}

// EmitSweep emits counters and timing for a sweep task.
func EmitSweep(sink statsd.Sink, in SweepMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Removed == 0:
		result = ResultNoop
	}
	tags := map[string]string{"task": in.Task, "result": result}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	sink.Count("sweep.run", 1, tags)
	if in.Removed > 0 {
		sink.Count("sweep.removed", int64(in.Removed), map[string]string{"task": in.Task})
	}
	if in.Skipped > 0 {
		sink.Count("sweep.skipped", int64(in.Skipped), map[string]string{"task": in.Task})
	}
	if in.Duration > 0 {
		sink.Timing("sweep.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
