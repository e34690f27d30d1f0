// Package pipeline runs the coarse skull stripper and the refinement for
// single images and for whole BIDS datasets.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"swistrip/internal/logging"
	"swistrip/pkg/bet"
	"swistrip/pkg/config"
	"swistrip/pkg/nifti"
	"swistrip/pkg/refine"
	"swistrip/pkg/stl"
	"swistrip/pkg/visualization"
)

// ErrMissingInput is returned when an input image does not exist
var ErrMissingInput = errors.New("missing input image")

// Output file names, appended to the output prefix
const (
	BetName    = "swi_bet.nii.gz"
	BrainName  = "swi_brain.nii.gz"
	MaskName   = "swi_brain_mask.nii.gz"
	ReportName = "swi_strip_report.yaml"
	MeshName   = "swi_brain_mask.stl"
)

// Input names the images of one session
type Input struct {
	SWI string

	// FLAIR is optional; when set it must exist
	FLAIR string

	// Prefix is prepended to every output file name and may include directories
	Prefix string
}

// Outputs lists the files written for one session
type Outputs struct {
	Bet    string   `yaml:"bet,omitempty"`
	Brain  string   `yaml:"brain"`
	Mask   string   `yaml:"mask"`
	Report string   `yaml:"report,omitempty"`
	Mesh   string   `yaml:"mesh,omitempty"`
	QC     []string `yaml:"qc,omitempty"`
}

// Report is the YAML document written next to the outputs
type Report struct {
	RunID   string        `yaml:"runID,omitempty"`
	Input   string        `yaml:"input"`
	Created time.Time     `yaml:"created"`
	Params  refine.Params `yaml:"params"`
	Stats   refine.Stats  `yaml:"stats"`
	Outputs Outputs       `yaml:"outputs"`
}

// Result is the outcome of one session
type Result struct {
	Outputs Outputs
	Stats   refine.Stats
}

// Runner processes sessions with a fixed configuration
type Runner struct {
	cfg     *config.Config
	refiner *refine.Refiner
	bet     *bet.Runner
	logger  *zap.Logger
}

// NewRunner validates cfg and prepares the refiner and the bet invocation
func NewRunner(cfg *config.Config, logger *zap.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger = logging.OrNop(logger)
	return &Runner{
		cfg:     cfg,
		refiner: refine.NewRefiner(refine.ParamsFromConfig(cfg), logger),
		bet:     bet.NewRunner(bet.Resolve(cfg.Bet.Path), cfg.Bet.FractionalIntensity, cfg.Bet.Robust, logger),
		logger:  logger,
	}, nil
}

// RunSession strips in.SWI with bet and refines the result
func (r *Runner) RunSession(ctx context.Context, in Input) (*Result, error) {
	return r.runSession(ctx, in, r.logger, "")
}

func (r *Runner) runSession(ctx context.Context, in Input, logger *zap.Logger, runID string) (*Result, error) {
	if err := requireFile(in.SWI); err != nil {
		return nil, err
	}
	if in.FLAIR != "" {
		if err := requireFile(in.FLAIR); err != nil {
			return nil, err
		}
	}
	if err := ensureDir(in.Prefix); err != nil {
		return nil, err
	}

	betOut := in.Prefix + BetName
	logger.Info("Step 1: Coarse skull stripping", zap.String("input", in.SWI), zap.String("output", betOut))
	if err := r.bet.Run(ctx, in.SWI, betOut); err != nil {
		return nil, err
	}

	res, err := r.refineFile(ctx, betOut, in.Prefix, logger, runID)
	if err != nil {
		return nil, err
	}
	res.Outputs.Bet = betOut
	return res, nil
}

// RefineFile refines an already stripped image and writes the outputs
// under prefix
func (r *Runner) RefineFile(ctx context.Context, input, prefix string) (*Result, error) {
	if err := requireFile(input); err != nil {
		return nil, err
	}
	if err := ensureDir(prefix); err != nil {
		return nil, err
	}
	return r.refineFile(ctx, input, prefix, r.logger, "")
}

func (r *Runner) refineFile(ctx context.Context, input, prefix string, logger *zap.Logger, runID string) (*Result, error) {
	logger.Info("Step 2: Loading stripped image", zap.String("path", input))
	vol, err := nifti.Read(input)
	if err != nil {
		return nil, err
	}

	logger.Info("Step 3: Refining mask")
	refined, err := r.refiner.Refine(ctx, vol)
	if err != nil {
		return nil, err
	}

	out := Outputs{
		Brain: prefix + BrainName,
		Mask:  prefix + MaskName,
	}

	logger.Info("Step 4: Saving outputs", zap.String("brain", out.Brain), zap.String("mask", out.Mask))
	if err := nifti.Write(out.Brain, refined.Brain); err != nil {
		return nil, fmt.Errorf("failed to save brain: %w", err)
	}
	if err := nifti.WriteMask(out.Mask, refined.Mask, vol); err != nil {
		return nil, fmt.Errorf("failed to save mask: %w", err)
	}
	if info, err := os.Stat(out.Brain); err == nil {
		logger.Debug("Saved brain", zap.String("size", humanize.Bytes(uint64(info.Size()))))
	}

	if err := r.diagnostics(refined, prefix, &out); err != nil {
		return nil, err
	}

	if r.cfg.Output.SaveReport {
		out.Report = prefix + ReportName
		report := Report{
			RunID:   runID,
			Input:   input,
			Created: time.Now().UTC(),
			Params:  r.refiner.Params(),
			Stats:   refined.Stats,
			Outputs: out,
		}
		if err := writeReport(out.Report, &report); err != nil {
			return nil, err
		}
	}

	return &Result{Outputs: out, Stats: refined.Stats}, nil
}

// diagnostics writes the optional QC slices and mask surface
func (r *Runner) diagnostics(res *refine.Result, prefix string, out *Outputs) error {
	if r.cfg.Output.QCDir != "" {
		viewer, err := visualization.NewViewer(res.Brain, res.Mask)
		if err != nil {
			return err
		}
		files, err := viewer.SaveMidSlices(r.cfg.Output.QCDir, filepath.Base(prefix))
		if err != nil {
			return fmt.Errorf("failed to save QC slices: %w", err)
		}
		out.QC = files
	}

	if r.cfg.Output.SaveMesh {
		out.Mesh = prefix + MeshName
		surface := stl.NewSurface(res.Mask)
		voxel := res.Brain.VoxelSize
		surface.SetScale(float32(voxel.X), float32(voxel.Y), float32(voxel.Z))
		if err := stl.SaveToSTL(out.Mesh, surface.GenerateTriangles()); err != nil {
			return fmt.Errorf("failed to save mesh: %w", err)
		}
	}

	return nil
}

func writeReport(path string, report *Report) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fmt.Errorf("%w: %s", ErrMissingInput, path)
	}
	return nil
}

// ensureDir creates the directory part of an output prefix
func ensureDir(prefix string) error {
	dir := filepath.Dir(prefix + "x")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return nil
}
