package refine

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"swistrip/internal/models"
	"swistrip/pkg/morphology"
)

// Thresholds decide where a column scan stops
type Thresholds struct {
	// Gradient is the largest allowed increase between neighbouring voxels
	Gradient float64

	// Intensity is the largest allowed absolute intensity
	Intensity float64
}

// BuildSeed erodes the input mask with the 6-connected element the given
// number of times. The result lies inside the input mask and may be empty.
func BuildSeed(mask *models.Mask, iterations int) *models.Mask {
	return morphology.Erode(mask, morphology.MustConnectivity(1), iterations)
}

// ScanColumn walks a column upward from zStart while zStart < zEnd and
// returns the first z whose successor breaks a threshold, or -1 when the
// scan reaches zEnd. The scan never reads past the top of the volume.
func ScanColumn(vol *models.Volume, col models.Column, zStart, zEnd int, th Thresholds) int {
	if zEnd > vol.Depth-1 {
		zEnd = vol.Depth - 1
	}

	for z := zStart; z < zEnd; z++ {
		current := vol.At(col.X, col.Y, z)
		next := vol.At(col.X, col.Y, z+1)

		gradient := next - current
		if gradient > th.Gradient || next > th.Intensity {
			return z
		}
	}
	return -1
}

// RefineColumns truncates every column of mask that the seed reaches at the
// first intensity discontinuity above the seed. It returns a new mask and
// the number of columns that were cut. Columns are split into bands of rows
// processed by up to workers goroutines; each band only touches its own
// columns, so the result does not depend on the worker count.
func RefineColumns(ctx context.Context, vol *models.Volume, mask, seed *models.Mask, th Thresholds, workers int) (*models.Mask, int, error) {
	out := mask.Clone()

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	bands := workers
	if bands > mask.Height {
		bands = mask.Height
	}
	if bands < 1 {
		bands = 1
	}
	rowsPerBand := (mask.Height + bands - 1) / bands

	cuts := make([]int, bands)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for b := 0; b < bands; b++ {
		b := b
		y0 := b * rowsPerBand
		y1 := min(y0+rowsPerBand, mask.Height)

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			for y := y0; y < y1; y++ {
				for x := 0; x < mask.Width; x++ {
					col := models.Column{X: x, Y: y}

					zCoreTop := seed.Top(col)
					if zCoreTop < 0 {
						continue
					}
					zMaskTop := mask.Top(col)
					if zMaskTop < 0 {
						continue
					}

					cutZ := ScanColumn(vol, col, zCoreTop, zMaskTop, th)
					if cutZ < 0 {
						continue
					}

					for z := cutZ + 1; z < mask.Depth; z++ {
						out.Set(x, y, z, false)
					}
					cuts[b]++
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	total := 0
	for _, c := range cuts {
		total += c
	}
	return out, total, nil
}

// Clean opens the mask with the element iterated to openingRadius and then
// closes it with the element iterated to closingRadius. A radius of 0
// skips the corresponding operation.
func Clean(mask *models.Mask, openingRadius, closingRadius int, base morphology.Structure) *models.Mask {
	out := mask
	if openingRadius > 0 {
		out = morphology.Open(out, base.Iterate(openingRadius))
	}
	if closingRadius > 0 {
		out = morphology.Close(out, base.Iterate(closingRadius))
	}
	if out == mask {
		out = mask.Clone()
	}
	return out
}

// SelectTopology keeps the largest connected component of mask and fills
// its enclosed holes. It also returns the number of components found.
func SelectTopology(mask *models.Mask, base morphology.Structure) (*models.Mask, int) {
	largest, count := morphology.LargestComponent(mask, base)
	if count == 0 {
		return largest, 0
	}
	return morphology.FillHoles(largest, base), count
}
