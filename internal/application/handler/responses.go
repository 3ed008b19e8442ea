package handler

import (
	"time"

	"civid/internal/application/models"
)

// ApplicationResponse is the API shape of an application. The subject only
// ever sees their own record; officers see the same shape on queue reads.
type ApplicationResponse struct {
	ID           string `json:"id"`
	SubjectID    string `json:"subject_id"`
	Status       string `json:"status"`
	DocumentType string `json:"document_type"`

	Fields models.Fields    `json:"fields"`
	Images models.ImageRefs `json:"images"`

	Confidence           *float64 `json:"confidence,omitempty"`
	RequiresManualReview bool     `json:"requires_manual_review"`

	UIN             string     `json:"uin,omitempty"`
	IssuedAt        *time.Time `json:"issued_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	ReviewedBy      string     `json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
}

func toResponse(app *models.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:                   app.ID.String(),
		SubjectID:            app.SubjectID.String(),
		Status:               string(app.Status),
		DocumentType:         string(app.DocumentType),
		Fields:               app.Fields,
		Images:               app.Images,
		Confidence:           app.Confidence,
		RequiresManualReview: app.RequiresManualReview,
		UIN:                  app.UIN.String(),
		IssuedAt:             app.IssuedAt,
		RejectionReason:      app.RejectionReason,
		ReviewedBy:           app.ReviewedBy.String(),
		ReviewedAt:           app.ReviewedAt,
		SubmittedAt:          app.SubmittedAt,
	}
}

func toResponses(apps []*models.Application) []ApplicationResponse {
	out := make([]ApplicationResponse, 0, len(apps))
	for _, app := range apps {
		out = append(out, toResponse(app))
	}
	return out
}
