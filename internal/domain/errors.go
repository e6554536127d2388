package domain

import (
	"errors"
	"fmt"
)

// MalformedScoreError indica que un valor devuelto por el evaluador no es numerico.
type MalformedScoreError struct {
	Trait Trait
	Raw   string
}

func (e *MalformedScoreError) Error() string {
	if e.Trait == "" {
		return fmt.Sprintf("malformed score %q", e.Raw)
	}
	return fmt.Sprintf("malformed score for %s: %q", e.Trait, e.Raw)
}

// GradeErrorKind distinguishes grading failures for logging; all of them
// count as a failed quorum slot.
type GradeErrorKind string

const (
	GradeUnparseable GradeErrorKind = "unparseable"
	GradeTimeout     GradeErrorKind = "timeout"
	GradeTransport   GradeErrorKind = "transport"
)

// GradeError is returned by the evaluator gateway.
type GradeError struct {
	Kind        GradeErrorKind
	EvaluatorID string
	SegmentID   string
	Err         error
}

func (e *GradeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("grade %s by %s: %s", e.SegmentID, e.EvaluatorID, e.Kind)
	}
	return fmt.Sprintf("grade %s by %s: %s: %v", e.SegmentID, e.EvaluatorID, e.Kind, e.Err)
}

func (e *GradeError) Unwrap() error { return e.Err }

// ErrNoScorePayload is wrapped by unparseable grade errors.
var ErrNoScorePayload = errors.New("no score payload in evaluator response")

// ErrReportNotFound is returned by checkpoint stores when a run has no stored report.
var ErrReportNotFound = errors.New("consensus report not found")

// QuorumExhaustedError se registra cuando no se pudo completar el quorum de evaluadores.
// Nunca aborta la corrida: el segmento queda EXHAUSTED con degraded=true.
type QuorumExhaustedError struct {
	SegmentID string
	Needed    int
	Got       int
	Failures  int
}

func (e *QuorumExhaustedError) Error() string {
	return fmt.Sprintf("quorum exhausted for %s: needed %d, got %d after %d failures", e.SegmentID, e.Needed, e.Got, e.Failures)
}

// IsGradeError reports whether err is a *GradeError of the given kind.
func IsGradeError(err error, kind GradeErrorKind) bool {
	var ge *GradeError
	return errors.As(err, &ge) && ge.Kind == kind
}
