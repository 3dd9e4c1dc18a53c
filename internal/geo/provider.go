package geo

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"cargoplan/internal/model"
	"cargoplan/internal/opt"
)

// MatrixProvider builds a square km distance matrix over points, in the
// given order.
type MatrixProvider interface {
	Name() string
	Matrix(ctx context.Context, points []model.Coordinates) (opt.Matrix, error)
}

// ProviderError reports a failed call to an external distance service.
type ProviderError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// GreatCircle computes matrices locally with the haversine formula.
type GreatCircle struct{}

func (GreatCircle) Name() string { return "haversine" }

func (GreatCircle) Matrix(_ context.Context, points []model.Coordinates) (opt.Matrix, error) {
	n := len(points)
	m := make(opt.Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := HaversineKm(points[i], points[j])
			m[i][j], m[j][i] = d, d
		}
	}
	return m, nil
}

// Fallback answers from Primary and, only when Primary reports a
// ProviderError, from Secondary. It is wired in when explicitly configured.
type Fallback struct {
	Primary   MatrixProvider
	Secondary MatrixProvider
}

func (f Fallback) Name() string { return f.Primary.Name() }

func (f Fallback) Matrix(ctx context.Context, points []model.Coordinates) (opt.Matrix, error) {
	m, _, err := f.MatrixWithSource(ctx, points)
	return m, err
}

// Named reports which provider actually answered, so routes record it.
type Named interface {
	MatrixWithSource(ctx context.Context, points []model.Coordinates) (opt.Matrix, string, error)
}

// MatrixWithSource is Matrix plus the name of the provider that answered.
func (f Fallback) MatrixWithSource(ctx context.Context, points []model.Coordinates) (opt.Matrix, string, error) {
	m, err := f.Primary.Matrix(ctx, points)
	if err == nil {
		return m, f.Primary.Name(), nil
	}
	var pe *ProviderError
	if !errors.As(err, &pe) || ctx.Err() != nil {
		return nil, "", err
	}
	log.Warn().Err(err).Str("primary", f.Primary.Name()).Str("fallback", f.Secondary.Name()).Msg("distance provider failed, using fallback")
	m, err = f.Secondary.Matrix(ctx, points)
	return m, f.Secondary.Name(), err
}

// BuildMatrix calls p and reports the provider that produced the matrix.
func BuildMatrix(ctx context.Context, p MatrixProvider, points []model.Coordinates) (opt.Matrix, string, error) {
	if nm, ok := p.(Named); ok {
		return nm.MatrixWithSource(ctx, points)
	}
	m, err := p.Matrix(ctx, points)
	return m, p.Name(), err
}
