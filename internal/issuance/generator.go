// Package issuance mints unique identification numbers for approved
// applications and repairs approvals whose holder record failed to write.
package issuance

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"civid/pkg/domain"
	dErrors "civid/pkg/domain-errors"
)

// ExistsFunc answers whether a candidate UIN is already taken.
type ExistsFunc func(ctx context.Context, uin domain.UIN) (bool, error)

// Generator mints UINs: configured prefix, a zero-padded time component and
// a zero-padded random component. The number carries no subject information;
// two applicants approved in the same second still get unrelated numbers.
type Generator struct {
	prefix     string
	exists     ExistsFunc
	maxRetries int
	now        func() time.Time
	metrics    *Metrics
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithMaxRetries bounds collision retries before giving up.
func WithMaxRetries(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxRetries = n
		}
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) GeneratorOption {
	return func(g *Generator) { g.now = now }
}

// WithMetrics attaches issuance metrics.
func WithMetrics(m *Metrics) GeneratorOption {
	return func(g *Generator) { g.metrics = m }
}

func NewGenerator(prefix string, exists ExistsFunc, opts ...GeneratorOption) *Generator {
	g := &Generator{
		prefix:     prefix,
		exists:     exists,
		maxRetries: 5,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Issue returns a UIN not currently present in the holder registry. The
// check-then-use window is closed by the registry's uniqueness constraint;
// this pre-check just keeps collisions out of the hot path.
func (g *Generator) Issue(ctx context.Context) (domain.UIN, error) {
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		candidate, err := g.mint()
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeIssuance, "could not mint UIN")
		}

		taken, err := g.exists(ctx, candidate)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeIssuance, "could not check UIN uniqueness")
		}
		if !taken {
			if g.metrics != nil {
				g.metrics.RecordIssued()
			}
			return candidate, nil
		}
		if g.metrics != nil {
			g.metrics.RecordCollision()
		}
	}
	return "", dErrors.New(dErrors.CodeIssuance, fmt.Sprintf("UIN collision retries exhausted after %d attempts", g.maxRetries))
}

// mint renders prefix + 6 time digits + 6 random digits.
func (g *Generator) mint() (domain.UIN, error) {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	random := binary.BigEndian.Uint64(raw[:]) % 1_000_000
	timePart := uint64(g.now().Unix()) % 1_000_000
	return domain.UIN(fmt.Sprintf("%s%06d%06d", g.prefix, timePart, random)), nil
}
