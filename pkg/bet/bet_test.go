package bet

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript creates an executable shell script standing in for bet
func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}

	path := filepath.Join(dir, "bet")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestResolve(t *testing.T) {
	t.Run("ExplicitPath", func(t *testing.T) {
		assert.Equal(t, "/custom/bet", Resolve("/custom/bet"))
	})

	t.Run("FSLDIR", func(t *testing.T) {
		fslDir := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(fslDir, "bin"), 0755))
		bin := filepath.Join(fslDir, "bin", "bet")
		require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755))

		t.Setenv("FSLDIR", fslDir)
		assert.Equal(t, bin, Resolve(""))
	})

	t.Run("Fallback", func(t *testing.T) {
		t.Setenv("FSLDIR", t.TempDir())
		t.Setenv("PATH", t.TempDir())
		assert.Equal(t, "bet", Resolve(""))
	})
}

func TestArgs(t *testing.T) {
	r := NewRunner("bet", 0.3, true, nil)
	assert.Equal(t, []string{"in.nii.gz", "out.nii.gz", "-f", "0.3", "-R"}, r.Args("in.nii.gz", "out.nii.gz"))

	r.Robust = false
	assert.Equal(t, []string{"in.nii.gz", "out.nii.gz", "-f", "0.3"}, r.Args("in.nii.gz", "out.nii.gz"))
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "swi.nii.gz")
	require.NoError(t, os.WriteFile(input, []byte("raw"), 0644))

	t.Run("Success", func(t *testing.T) {
		script := writeScript(t, t.TempDir(), `cp "$1" "$2"`)
		output := filepath.Join(dir, "swi_bet.nii.gz")

		require.NoError(t, NewRunner(script, 0.3, true, nil).Run(context.Background(), input, output))
		data, err := os.ReadFile(output)
		require.NoError(t, err)
		assert.Equal(t, "raw", string(data))
	})

	t.Run("NonZeroExit", func(t *testing.T) {
		script := writeScript(t, t.TempDir(), `echo "image not found" >&2; exit 3`)

		err := NewRunner(script, 0.3, true, nil).Run(context.Background(), input, filepath.Join(dir, "x.nii.gz"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrExternalTool))
		assert.Contains(t, err.Error(), "image not found")
	})

	t.Run("NoOutput", func(t *testing.T) {
		script := writeScript(t, t.TempDir(), `exit 0`)

		err := NewRunner(script, 0.3, true, nil).Run(context.Background(), input, filepath.Join(dir, "none.nii.gz"))
		assert.True(t, errors.Is(err, ErrExternalTool))
	})

	t.Run("MissingBinary", func(t *testing.T) {
		err := NewRunner(filepath.Join(dir, "no-such-bet"), 0.3, true, nil).Run(context.Background(), input, filepath.Join(dir, "y.nii.gz"))
		assert.True(t, errors.Is(err, ErrExternalTool))
	})
}
