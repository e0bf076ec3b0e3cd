package signals

import (
	"math"
	"regexp"
	"strings"
	"unicode"
)

// Readability 可读性指标
type Readability struct {
	FleschReadingEase    float64 `json:"flesch_reading_ease"`
	FleschKincaidGrade   float64 `json:"flesch_kincaid_grade"`
	GunningFogIndex      float64 `json:"gunning_fog_index"`
	SmogIndex            float64 `json:"smog_index"`
	AutomatedReadability float64 `json:"automated_readability_index"`
	ColemanLiauIndex     float64 `json:"coleman_liau_index"`
	DifficultWords       int     `json:"difficult_words"`
	SyllableCount        int     `json:"syllable_count"`
	ReadingTimeMinutes   float64 `json:"reading_time"`
}

// wordsPerMinute 平均阅读速度
const wordsPerMinute = 225

var sentenceSplit = regexp.MustCompile(`[.!?]+(?:\s|$)|\n{2,}`)

// CountSentences 按句末标点或空行估算句子数
func CountSentences(text string) int {
	n := 0
	for _, part := range sentenceSplit.Split(text, -1) {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}

// AnalyzeReadability 计算可读性指标；空文本返回零值
func AnalyzeReadability(text string) Readability {
	words := letterWords(text)
	if len(words) == 0 {
		return Readability{}
	}
	sentences := float64(max(CountSentences(text), 1))
	wc := float64(len(words))

	var syllables, polysyllables, letters, difficult int
	for _, w := range words {
		s := countSyllables(w)
		syllables += s
		if s >= 3 {
			polysyllables++
			if !strings.Contains(w, "-") {
				difficult++
			}
		}
		letters += len([]rune(w))
	}

	r := Readability{
		FleschReadingEase:    206.835 - 1.015*(wc/sentences) - 84.6*(float64(syllables)/wc),
		FleschKincaidGrade:   0.39*(wc/sentences) + 11.8*(float64(syllables)/wc) - 15.59,
		GunningFogIndex:      0.4 * ((wc / sentences) + 100*(float64(polysyllables)/wc)),
		SmogIndex:            1.043*math.Sqrt(float64(polysyllables)*(30/sentences)) + 3.1291,
		AutomatedReadability: 4.71*(float64(letters)/wc) + 0.5*(wc/sentences) - 21.43,
		ColemanLiauIndex:     0.0588*(float64(letters)/wc*100) - 0.296*(sentences/wc*100) - 15.8,
		DifficultWords:       difficult,
		SyllableCount:        syllables,
		ReadingTimeMinutes:   math.Round(wc/wordsPerMinute*100) / 100,
	}
	r.FleschReadingEase = round2(r.FleschReadingEase)
	r.FleschKincaidGrade = round2(r.FleschKincaidGrade)
	r.GunningFogIndex = round2(r.GunningFogIndex)
	r.SmogIndex = round2(r.SmogIndex)
	r.AutomatedReadability = round2(r.AutomatedReadability)
	r.ColemanLiauIndex = round2(r.ColemanLiauIndex)
	return r
}

func letterWords(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '-' && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "-'")
		if f != "" {
			out = append(out, strings.ToLower(f))
		}
	}
	return out
}

// countSyllables 元音组计数的近似算法
func countSyllables(word string) int {
	word = strings.ToLower(word)
	count := 0
	prevVowel := false
	for _, r := range word {
		v := strings.ContainsRune("aeiouy", r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}
	if strings.HasSuffix(word, "e") && !strings.HasSuffix(word, "le") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
