// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	dErrors "civid/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a SubjectID where a UIN is expected.
// SubjectID and ReviewerID come from the external identity provider and are
// opaque; ApplicationID and UIN are minted here and have a fixed shape.
type (
	SubjectID     string
	ApplicationID string
	ReviewerID    string
	UIN           string
	FaceID        string
)

const (
	// applicationIDPrefix marks identifiers minted by this service.
	applicationIDPrefix = "app_"
	// applicationIDRandLen is the length of the random suffix.
	applicationIDRandLen = 6
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewApplicationID mints a collision-resistant application identifier:
// a fixed-width base36 millisecond timestamp concatenated with a short
// random suffix. The timestamp keeps identifiers roughly sortable; the
// suffix breaks ties between submissions in the same millisecond.
func NewApplicationID(now time.Time) (ApplicationID, error) {
	ts := encodeBase36(uint64(now.UnixMilli()), 9)
	suffix, err := randomBase36(applicationIDRandLen)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate application ID")
	}
	return ApplicationID(applicationIDPrefix + ts + suffix), nil
}

// encodeBase36 renders v in base36, zero-padded to width characters.
func encodeBase36(v uint64, width int) string {
	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = base36[v%36]
		v /= 36
	}
	return string(buf)
}

func randomBase36(n int) (string, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = base36[int(b)%36]
	}
	return string(out), nil
}

// Parse functions - use at trust boundaries (handlers, API inputs).

func ParseSubjectID(s string) (SubjectID, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject ID cannot be empty")
	}
	return SubjectID(s), nil
}

func ParseApplicationID(s string) (ApplicationID, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "application ID cannot be empty")
	}
	if !strings.HasPrefix(s, applicationIDPrefix) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid application ID format")
	}
	return ApplicationID(s), nil
}

func ParseReviewerID(s string) (ReviewerID, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "reviewer ID cannot be empty")
	}
	return ReviewerID(s), nil
}

// ParseUIN validates the stable UIN shape: an upper-case alphabetic prefix
// followed by digits. The exact prefix is deployment configuration; the shape
// is fixed so downstream systems can validate it.
func ParseUIN(s string) (UIN, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "UIN cannot be empty")
	}
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid UIN format")
	}
	for _, c := range s[i:] {
		if c < '0' || c > '9' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "invalid UIN format")
		}
	}
	return UIN(s), nil
}

// String methods - for logging and debugging.

func (id SubjectID) String() string     { return string(id) }
func (id ApplicationID) String() string { return string(id) }
func (id ReviewerID) String() string    { return string(id) }
func (id UIN) String() string           { return string(id) }
func (id FaceID) String() string        { return string(id) }

// IsNil checks - used for service-layer validation.

func (id SubjectID) IsNil() bool     { return id == "" }
func (id ApplicationID) IsNil() bool { return id == "" }
func (id ReviewerID) IsNil() bool    { return id == "" }
func (id UIN) IsNil() bool           { return id == "" }
func (id FaceID) IsNil() bool        { return id == "" }

// Redacted returns a UIN form safe for logging: prefix plus last two digits.
func (id UIN) Redacted() string {
	s := string(id)
	if len(s) <= 4 {
		return "****"
	}
	return fmt.Sprintf("%s****%s", s[:2], s[len(s)-2:])
}
