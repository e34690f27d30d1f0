// Package bet runs FSL's brain extraction tool, the coarse skull stripper
// whose output the refinement consumes.
package bet

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"swistrip/internal/logging"
)

// ErrExternalTool is returned when bet cannot be started or exits non-zero
var ErrExternalTool = errors.New("coarse skull stripper failed")

// Resolve picks the bet binary: an explicit path wins, then
// $FSLDIR/bin/bet if it exists, then bet on PATH, and finally the bare
// command name.
func Resolve(userPath string) string {
	if userPath != "" {
		return userPath
	}

	if fslDir := os.Getenv("FSLDIR"); fslDir != "" {
		candidate := filepath.Join(fslDir, "bin", "bet")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	if path, err := exec.LookPath("bet"); err == nil {
		return path
	}

	return "bet"
}

// Runner invokes bet with fixed parameters
type Runner struct {
	// Binary is the bet executable
	Binary string

	// FractionalIntensity is passed as -f; smaller values give larger brain estimates
	FractionalIntensity float64

	// Robust adds -R
	Robust bool

	logger *zap.Logger
}

// NewRunner returns a runner for the given binary
func NewRunner(binary string, fractionalIntensity float64, robust bool, logger *zap.Logger) *Runner {
	return &Runner{
		Binary:              binary,
		FractionalIntensity: fractionalIntensity,
		Robust:              robust,
		logger:              logging.OrNop(logger),
	}
}

// Args returns the command line arguments for stripping input into output
func (r *Runner) Args(input, output string) []string {
	args := []string{input, output, "-f", strconv.FormatFloat(r.FractionalIntensity, 'g', -1, 64)}
	if r.Robust {
		args = append(args, "-R")
	}
	return args
}

// Run strips input into output. Any failure, including a missing output
// file after a zero exit status, is reported as ErrExternalTool.
func (r *Runner) Run(ctx context.Context, input, output string) error {
	args := r.Args(input, output)
	r.logger.Info("Running coarse skull stripper",
		zap.String("command", r.Binary+" "+strings.Join(args, " ")))

	cmd := exec.CommandContext(ctx, r.Binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrExternalTool, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%w: %s: %v: %s", ErrExternalTool, r.Binary, err, msg)
		}
		return fmt.Errorf("%w: %s: %v", ErrExternalTool, r.Binary, err)
	}

	if _, err := os.Stat(output); err != nil {
		return fmt.Errorf("%w: %s produced no output at %s", ErrExternalTool, r.Binary, output)
	}
	return nil
}
