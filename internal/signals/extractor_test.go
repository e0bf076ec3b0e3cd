package signals

import (
	"testing"

	"ats-scanner/internal/segment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resumeText = `John Smith
john.smith@mail.com | +1 (415) 555-0199 | 1200 Market Street, San Francisco, CA 94103

Summary
Senior engineer with 7+ years of experience building C++ and Python services.

Experience
- Developed Node.js APIs serving 2M requests per day
- Managed PostgreSQL and Redis clusters; python tooling for python teams

Education
Master of Science, Stanford University

Skills
C++, C#, Python, Node.js, Docker, CI/CD`

func TestExtract_Resume(t *testing.T) {
	sections := segment.Segment(resumeText)
	sig := NewExtractor(nil).Extract(resumeText, sections)

	assert.Equal(t, []string{"Python", "C++", "C#", "Node.js", "PostgreSQL", "Redis", "Docker", "CI/CD"}, sig.Skills)
	assert.Equal(t, []string{"john.smith@mail.com"}, sig.Contact.Emails)
	require.Len(t, sig.Contact.Phones, 1)
	assert.True(t, sig.Contact.HasAddress)
	assert.Equal(t, 7, sig.ExperienceYears)
	assert.Equal(t, []string{"Master"}, sig.Education)
	assert.Equal(t, 2, sig.BulletCount)
	assert.Equal(t, []string{"experience", "education", "skills", "summary"}, sig.Sections)

	assert.Contains(t, sig.Keywords, "python")
	assert.Contains(t, sig.Keywords, "node.js")
	assert.NotContains(t, sig.Keywords, "summary", "header lines are not keywords")
	assert.NotContains(t, sig.Keywords, "with", "stopword")
	assert.Contains(t, sig.RepeatedKeywords, "python")
	assert.NotContains(t, sig.RepeatedKeywords, "docker")
}

func TestExtract_NoContactRecordedAsAbsent(t *testing.T) {
	sig := NewExtractor(nil).Extract("Plain words only here", nil)
	assert.Empty(t, sig.Contact.Emails)
	assert.Empty(t, sig.Contact.Phones)
	assert.False(t, sig.Contact.HasAddress)
	assert.Equal(t, 4, sig.WordCount)
	assert.Equal(t, []string{"plain", "words"}, sig.Keywords)
}

func TestSkills_WholeWordOnly(t *testing.T) {
	v := DefaultVocabulary()
	assert.Empty(t, v.Match("javascripting and gopher stuff"))
	assert.Equal(t, []string{"Java", "Go"}, v.Match("Java; Go."))
	assert.Equal(t, []string{"JavaScript"}, v.Match("JAVASCRIPT"))
}

func TestExperienceYears(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"5 years experience", 5},
		{"3+ yrs of experience and 10 years of experience", 10},
		{"Experience: 4 years", 4},
		{"no numbers", 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ExperienceYears(c.in), c.in)
	}
}

func TestEducationMarkers_WordBoundary(t *testing.T) {
	assert.Empty(t, EducationMarkers("mastered associated tooling"))
	assert.Equal(t, []string{"Bachelor", "MBA"}, EducationMarkers("bachelor degree, then an MBA"))
	assert.Equal(t, []string{"B.S."}, EducationMarkers("B.S. in Physics"))
}

func TestExtractJobRequirement(t *testing.T) {
	req := NewExtractor(nil).ExtractJobRequirement("Seeking Python developer with SQL skills")
	assert.Equal(t, []string{"Python", "SQL"}, req.Skills)
	assert.Equal(t, 6, req.WordCount)
	assert.Equal(t, 0, req.ExperienceYears)
	assert.Empty(t, req.Education)
	assert.Equal(t, []string{"seeking", "python", "developer", "sql", "skills"}, req.Keywords)
}

func TestCountBullets(t *testing.T) {
	text := "• one\n- two\n* three\n1. four\n-five\nplain"
	assert.Equal(t, 4, CountBullets(text))
}

func TestNormalize(t *testing.T) {
	in := "\ufeffLine one   \r\nLine two\x00\r\n\r\n"
	assert.Equal(t, "Line one\nLine two", Normalize(in))
}

func TestBuildDocument(t *testing.T) {
	doc := BuildDocument("abc", "- a b\n- c")
	assert.Equal(t, "abc", doc.ContentHash)
	assert.Equal(t, 5, doc.WordCount)
	assert.Equal(t, 2, doc.BulletCount)
}

func TestBuildDocument_NormalizesExtractedText(t *testing.T) {
	raw := "\ufeffExperience\r\n\u00a0- Built services\r\n\u00a0\u00a0- Led team\r\u202f• Shipped API  \r\n"
	doc := BuildDocument("h", raw)
	assert.Equal(t, "Experience\n - Built services\n  - Led team\n • Shipped API", doc.Text)
	assert.Equal(t, 3, doc.BulletCount)
	assert.Equal(t, 10, doc.WordCount)
}

func TestTokenize_DropsStopWords(t *testing.T) {
	assert.True(t, IsStopWord("with"))
	assert.False(t, IsStopWord("engineer"))
	assert.Equal(t, []string{"engineer", "c++", "node.js"}, Tokenize("The engineer and the C++ team, with Node.js."))
}
