// Package bids discovers SWI sessions in a BIDS dataset.
//
// FLAIR images are read from rawdata/sub-*/ses-*/anat/, SWI images from
// rawdata/sub-*/ses-*/swi/, and outputs are placed under
// derivatives/swi_strip/<sub>/<ses>/swi/.
package bids

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DerivativesName is the pipeline directory under derivatives/
const DerivativesName = "swi_strip"

// Session is one subject/session pair with its resolved inputs and outputs
type Session struct {
	Subject string
	Session string

	// FLAIR is the anatomical reference required for a session to be processed
	FLAIR string
	SWI   string

	OutDir string
	Prefix string
}

// ID returns "sub-XX/ses-YY"
func (s Session) ID() string {
	return s.Subject + "/" + s.Session
}

// Output joins the session prefix and name inside the output directory
func (s Session) Output(name string) string {
	return filepath.Join(s.OutDir, s.Prefix+name)
}

// Skipped records a session that was found but cannot be processed
type Skipped struct {
	Subject string
	Session string
	Reason  string
}

// Options controls discovery
type Options struct {
	// SwiSuffix is appended to "<sub>_<ses>_" to name the SWI file. It may
	// hold glob metacharacters; the first match in name order is used.
	SwiSuffix string

	// Limit caps the number of subjects visited; zero means all
	Limit int
}

// Discover walks root/rawdata and returns the processable sessions in
// subject then session order. A missing rawdata directory is an error.
func Discover(root string, opts Options) ([]Session, []Skipped, error) {
	if opts.SwiSuffix == "" {
		opts.SwiSuffix = "swi.nii.gz"
	}

	rawdata := filepath.Join(root, "rawdata")
	subjects, err := listDirs(rawdata, "sub-")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	if opts.Limit > 0 && len(subjects) > opts.Limit {
		subjects = subjects[:opts.Limit]
	}

	var sessions []Session
	var skipped []Skipped
	for _, sub := range subjects {
		sesDirs, err := listDirs(filepath.Join(rawdata, sub), "ses-")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list sessions of %s: %w", sub, err)
		}

		for _, ses := range sesDirs {
			prefix := sub + "_" + ses + "_"
			sesDir := filepath.Join(rawdata, sub, ses)
			s := Session{
				Subject: sub,
				Session: ses,
				FLAIR:   filepath.Join(sesDir, "anat", prefix+"FLAIR.nii.gz"),
				SWI:     firstMatch(filepath.Join(sesDir, "swi", prefix+opts.SwiSuffix)),
				OutDir:  filepath.Join(root, "derivatives", DerivativesName, sub, ses, "swi"),
				Prefix:  prefix,
			}

			switch {
			case !isFile(s.FLAIR):
				skipped = append(skipped, Skipped{sub, ses, "missing FLAIR image"})
			case s.SWI == "":
				skipped = append(skipped, Skipped{sub, ses, "missing SWI image"})
			default:
				sessions = append(sessions, s)
			}
		}
	}

	return sessions, skipped, nil
}

// listDirs returns the sorted names of subdirectories starting with prefix
func listDirs(dir, prefix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// firstMatch returns the first regular file matching pattern, or ""
func firstMatch(pattern string) string {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return ""
	}
	sort.Strings(matches)
	for _, m := range matches {
		if isFile(m) {
			return m
		}
	}
	return ""
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
