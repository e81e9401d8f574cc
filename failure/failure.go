// Package failure decides whether a run continues after a task finished.
package failure

import "github.com/cxlmemsim/cxlbench/runner"

// Policy holds the operator's failure handling flags.
type Policy struct {
	IgnoreErrors bool
	StopOnError  bool
}

// Verdict is the decision taken after a task.
type Verdict uint8

const (
	Continue Verdict = iota
	Abort
)

func (v Verdict) String() string {
	if v == Abort {
		return "abort"
	}
	return "continue"
}

// Decide maps a task result to a verdict:
//
//	success                      -> continue
//	failure, ignore errors       -> continue
//	failure, stop on error       -> abort
//	failure, neither flag        -> continue
//	interrupted                  -> abort
//
// IgnoreErrors takes precedence over StopOnError.
func Decide(res runner.Result, p Policy) Verdict {
	switch {
	case res.Outcome == runner.Interrupted:
		return Abort
	case !res.Failed():
		return Continue
	case p.IgnoreErrors:
		return Continue
	case p.StopOnError:
		return Abort
	}
	return Continue
}
