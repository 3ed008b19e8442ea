package blob

import (
	"net/http"
	"strings"

	"civid/internal/platform/middleware"
	"civid/internal/policy"
	"civid/pkg/platform/httputil"

	dErrors "civid/pkg/domain-errors"
)

// Handler exchanges stored image keys for time-limited signed URLs.
// Citizens may only sign keys under their own prefix; officers and admins
// may sign any key.
type Handler struct {
	signer *Signer
}

func NewHandler(signer *Signer) *Handler {
	return &Handler{signer: signer}
}

// SignedURL handles GET /v1/documents/url?key=.
func (h *Handler) SignedURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key := r.URL.Query().Get("key")
	if key == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "key query parameter is required"))
		return
	}

	subject := middleware.GetSubject(ctx)
	roles := middleware.GetRoles(ctx)
	if !policy.CanReview(roles) && !ownsKey(subject, key) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "cannot access another subject's documents"))
		return
	}

	signed, err := h.signer.SignedURL(key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"url": signed})
}

// ownsKey checks the storage layout convention: subject-owned keys live
// under "subjects/<subjectID>/".
func ownsKey(subject, key string) bool {
	return subject != "" && strings.HasPrefix(key, "subjects/"+subject+"/")
}
