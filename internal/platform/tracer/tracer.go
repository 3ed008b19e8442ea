// Package tracer is a lightweight tracing abstraction for the workflow
// engine. Domain code emits spans through this interface and stays decoupled
// from OpenTelemetry; production wires the otel adapter, tests the noop.
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks the span failed.
	// End must be called exactly once, typically via defer.
	End(err error)

	// SetAttributes adds key-value pairs to the span.
	SetAttributes(attrs ...Attribute)

	// AddEvent records a timestamped event within the span.
	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute is a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }
func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }
func Int64(key string, value int64) Attribute { return Attribute{Key: key, Value: value} }
func Float64(key string, value float64) Attribute { return Attribute{Key: key, Value: value} }

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names used by the workflow engine.
const (
	SpanSubmit      = "application.submit"
	SpanStartReview = "application.start_review"
	SpanApprove     = "application.approve"
	SpanReject      = "application.reject"
	SpanVisionCheck = "application.vision_check"
	SpanIssueUIN    = "issuance.mint_uin"
)

// Attribute keys used by the workflow engine. Identifiers are service-minted
// and carry no PII; subject IDs and UINs never go into spans raw.
const (
	AttrApplicationID = "application.id"
	AttrStatus        = "application.status"
	AttrResubmission  = "application.resubmission"
	AttrManualReview  = "application.manual_review"
	AttrAutoApproved  = "application.auto_approved"
	AttrDecision      = "review.decision"
)
