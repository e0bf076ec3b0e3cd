package signals

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVocabulary_Dedupe(t *testing.T) {
	v := NewVocabulary("t", []string{"Go", "go", " Rust ", "", "GO"})
	assert.Equal(t, []string{"Go", "Rust"}, v.Skills())
	assert.Equal(t, 2, v.Len())
	assert.Equal(t, "t", v.Version)
}

func TestVocabulary_Search(t *testing.T) {
	v := DefaultVocabulary()
	assert.Equal(t, []string{"Spring", "Spring Boot"}, v.Search("spring"))
	assert.Nil(t, v.Search("  "))
}

func TestVocabulary_SkillsReturnsCopy(t *testing.T) {
	v := NewVocabulary("t", []string{"Go"})
	s := v.Skills()
	s[0] = "changed"
	assert.Equal(t, []string{"Go"}, v.Skills())
}

func TestLoadVocabulary_MergesWithDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skills.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: v2\nskills:\n  - Hertz\n  - Python\n"), 0o644))

	v, err := LoadVocabulary(path)
	require.NoError(t, err)
	assert.Equal(t, "v2", v.Version)
	assert.Equal(t, DefaultVocabulary().Len()+1, v.Len())
	assert.Equal(t, []string{"Python", "Hertz"}, v.Match("Python services on Hertz"))
}

func TestLoadVocabulary_Replace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skills.yaml")
	require.NoError(t, os.WriteFile(path, []byte("replace_default: true\nskills: [Cobol, Fortran]\n"), 0o644))

	v, err := LoadVocabulary(path)
	require.NoError(t, err)
	assert.Equal(t, path, v.Version)
	assert.Equal(t, []string{"Cobol", "Fortran"}, v.Skills())
	assert.Empty(t, v.Match("Python"))
}

func TestLoadVocabulary_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadVocabulary(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("skills: [unterminated"), 0o644))
	_, err = LoadVocabulary(bad)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("replace_default: true\n"), 0o644))
	_, err = LoadVocabulary(empty)
	assert.Error(t, err)
}
