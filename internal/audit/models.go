// Package audit captures the review accountability trail. Every mutating
// workflow operation emits an event; approval and rejection events are the
// record of who decided what, and when.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	// Actor is the principal performing the action: a subject, a reviewer,
	// or "system" for automated decisions.
	Actor string `json:"actor"`
	// Subject is the applicant the action concerns.
	Subject   string `json:"subject"`
	Action    Action `json:"action"`
	Decision  string `json:"decision,omitempty"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	// IP is stored anonymized; the publisher truncates it before persisting.
	IP string `json:"ip,omitempty"`
}

type Action string

const (
	ActionApplicationSubmitted   Action = "application_submitted"
	ActionApplicationResubmitted Action = "application_resubmitted"
	ActionReviewStarted          Action = "review_started"
	ActionApplicationApproved    Action = "application_approved"
	ActionApplicationRejected    Action = "application_rejected"
	ActionApplicationPurged      Action = "application_purged"
	ActionCredentialSuspended    Action = "credential_suspended"
	ActionCredentialReinstated   Action = "credential_reinstated"
	ActionCredentialRevoked      Action = "credential_revoked"
)
