// Package codegen assigns short numeric identifiers that are unique within an
// organisation.
package codegen

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
)

const (
	MinCode = 1000000
	MaxCode = 9999999
)

// ExistsFunc reports whether code is already used inside the organisation.
type ExistsFunc func(ctx context.Context, organisationID, code string) (bool, error)

// Generator draws random codes until one is free.
type Generator struct {
	exists ExistsFunc
	intN   func(n int) int
}

// New creates a generator backed by the given existence check.
func New(exists ExistsFunc) *Generator {
	return &Generator{exists: exists, intN: rand.IntN}
}

// WithSource replaces the random source. Used by tests.
func (g *Generator) WithSource(intN func(n int) int) *Generator {
	g.intN = intN
	return g
}

// Generate returns a code in [MinCode, MaxCode] not yet used by the
// organisation. There is no retry cap; cancelling ctx stops the loop.
func (g *Generator) Generate(ctx context.Context, organisationID string) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code := strconv.Itoa(MinCode + g.intN(MaxCode-MinCode+1))
		taken, err := g.exists(ctx, organisationID, code)
		if err != nil {
			return "", fmt.Errorf("check code %s: %w", code, err)
		}
		if !taken {
			return code, nil
		}
	}
}
