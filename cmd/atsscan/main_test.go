package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func resume() string {
	var b strings.Builder
	b.WriteString("Jane Doe\nEmail: jane.doe@example.com | Phone: (212) 555-0147\n\n")
	b.WriteString("Summary\nBackend engineer with 6 years of experience in Go and Python.\n\n")
	b.WriteString("Experience\n")
	for i := 0; i < 6; i++ {
		b.WriteString("- Developed and managed Kubernetes services, responsible for uptime and Docker builds\n")
	}
	b.WriteString("\nEducation\nBachelor of Science, State University\n\n")
	b.WriteString("Skills\nGo, Python, Docker, Kubernetes, Redis, PostgreSQL\n")
	return b.String()
}

func TestRun_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "jane.txt", resume())

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"--compact", path}, &stdout, &stderr))

	var out map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, "jane.txt", out["filename"])
	assert.Equal(t, "quality", out["scoring_type"])
}

func TestRun_BatchWithJobDescription(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", resume())
	b := writeFile(t, dir, "b.exe", "MZ")
	jd := writeFile(t, dir, "jd.txt", "Backend engineer with Go, Python and Kubernetes")

	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{"--job-description-file", jd, a, b}, &stdout, &stderr))

	var out struct {
		Results []struct {
			Filename    string `json:"filename"`
			ScoringType string `json:"scoring_type"`
		} `json:"results"`
		Summary struct {
			Total  int `json:"total"`
			Failed int `json:"failed"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	require.Len(t, out.Results, 2)
	assert.Equal(t, "job_match", out.Results[0].ScoringType)
	assert.Equal(t, "error", out.Results[1].ScoringType)
	assert.Equal(t, 1, out.Summary.Failed)
}

func TestRun_Errors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Error(t, run(nil, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "atsscan")

	assert.Error(t, run([]string{filepath.Join(t.TempDir(), "missing.pdf")}, &stdout, &stderr))
	assert.Error(t, run([]string{writeFile(t, t.TempDir(), "x.exe", "MZ")}, &stdout, &stderr))
}
