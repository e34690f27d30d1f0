package bids

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// touch creates an empty file and its parent directories
func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, nil, 0644))
}

// createDataset lays out three subjects:
// sub-01 with two complete sessions, sub-02 missing FLAIR, sub-03 complete
func createDataset(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := func(sub, ses, kind string) string {
		return filepath.Join(root, "rawdata", sub, ses, kind)
	}

	for _, ses := range []string{"ses-02", "ses-01"} {
		touch(t, filepath.Join(dir("sub-01", ses, "anat"), "sub-01_"+ses+"_FLAIR.nii.gz"))
		touch(t, filepath.Join(dir("sub-01", ses, "swi"), "sub-01_"+ses+"_swi.nii.gz"))
	}
	touch(t, filepath.Join(dir("sub-02", "ses-01", "swi"), "sub-02_ses-01_swi.nii.gz"))
	touch(t, filepath.Join(dir("sub-03", "ses-01", "anat"), "sub-03_ses-01_FLAIR.nii.gz"))
	touch(t, filepath.Join(dir("sub-03", "ses-01", "swi"), "sub-03_ses-01_swi.nii.gz"))

	// not a subject
	require.NoError(t, os.MkdirAll(filepath.Join(root, "rawdata", "code"), 0755))
	touch(t, filepath.Join(root, "rawdata", "participants.tsv"))
	return root
}

func TestDiscover(t *testing.T) {
	root := createDataset(t)

	sessions, skipped, err := Discover(root, Options{})
	require.NoError(t, err)

	var ids []string
	for _, s := range sessions {
		ids = append(ids, s.ID())
	}
	if diff := cmp.Diff([]string{"sub-01/ses-01", "sub-01/ses-02", "sub-03/ses-01"}, ids); diff != "" {
		t.Errorf("sessions mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, skipped, 1)
	assert.Equal(t, Skipped{"sub-02", "ses-01", "missing FLAIR image"}, skipped[0])

	s := sessions[2]
	assert.Equal(t, filepath.Join(root, "rawdata", "sub-03", "ses-01", "swi", "sub-03_ses-01_swi.nii.gz"), s.SWI)
	assert.Equal(t, filepath.Join(root, "derivatives", "swi_strip", "sub-03", "ses-01", "swi"), s.OutDir)
	assert.Equal(t, filepath.Join(s.OutDir, "sub-03_ses-01_swi_brain.nii.gz"), s.Output("swi_brain.nii.gz"))
}

func TestDiscoverLimitCountsSubjects(t *testing.T) {
	root := createDataset(t)

	sessions, _, err := Discover(root, Options{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.Equal(t, "sub-01", s.Subject)
	}
}

func TestDiscoverSuffix(t *testing.T) {
	root := createDataset(t)
	touch(t, filepath.Join(root, "rawdata", "sub-03", "ses-01", "swi", "sub-03_ses-01_acq-mag_swi.nii.gz"))

	sessions, skipped, err := Discover(root, Options{SwiSuffix: "acq-mag_swi.nii.gz"})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sub-03/ses-01", sessions[0].ID())

	reasons := map[string]int{}
	for _, s := range skipped {
		reasons[s.Reason]++
	}
	assert.Equal(t, map[string]int{"missing SWI image": 2, "missing FLAIR image": 1}, reasons)
}

func TestDiscoverGlobSuffix(t *testing.T) {
	root := createDataset(t)
	swi := filepath.Join(root, "rawdata", "sub-03", "ses-01", "swi")
	touch(t, filepath.Join(swi, "sub-03_ses-01_run-2_swi.nii.gz"))
	touch(t, filepath.Join(swi, "sub-03_ses-01_run-1_swi.nii.gz"))

	sessions, _, err := Discover(root, Options{SwiSuffix: "run-*_swi.nii.gz"})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, filepath.Join(swi, "sub-03_ses-01_run-1_swi.nii.gz"), sessions[0].SWI)
}

func TestDiscoverMissingRawdata(t *testing.T) {
	_, _, err := Discover(t.TempDir(), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
