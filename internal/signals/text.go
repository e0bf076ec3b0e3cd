package signals

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// stopWords 关键词提取时过滤的常见词
var stopWords = map[string]bool{
	"and": true, "the": true, "for": true, "with": true, "you": true,
	"are": true, "have": true, "will": true, "this": true, "that": true,
	"from": true, "our": true, "your": true, "their": true, "they": true,
	"work": true, "team": true, "role": true, "job": true, "join": true,
	"about": true, "which": true, "what": true, "who": true, "how": true,
	"can": true, "not": true, "but": true, "all": true, "also": true,
	"more": true, "than": true, "into": true, "has": true, "its": true,
	"was": true, "were": true, "been": true, "each": true, "new": true,
	"use": true, "using": true, "used": true, "well": true, "high": true,
	"good": true, "able": true, "get": true, "set": true, "such": true,
	"any": true, "had": true, "her": true, "him": true, "his": true,
	"she": true, "them": true, "then": true, "there": true, "these": true,
	"those": true, "would": true, "should": true, "could": true, "must": true,
	"may": true, "might": true, "very": true, "over": true, "under": true,
	"out": true, "off": true, "per": true, "via": true, "etc": true,
	"one": true, "two": true, "other": true, "some": true, "most": true,
	"only": true, "own": true, "same": true, "both": true, "few": true,
	"while": true, "where": true, "when": true, "why": true, "whom": true,
	"being": true, "does": true, "did": true, "doing": true, "just": true,
	"yours": true, "ours": true, "myself": true, "mine": true, "because": true,
	"between": true, "through": true, "during": true, "before": true, "after": true,
	"above": true, "below": true, "again": true, "further": true, "once": true,
	"here": true, "nor": true, "too": true, "whose": true, "upon": true,
	"within": true, "without": true, "including": true, "across": true, "along": true,
}

// IsStopWord 判断是否为停用词
func IsStopWord(w string) bool {
	return stopWords[w]
}

var bulletPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\s*[•·▪▫‣⁃◦]\s`),
	regexp.MustCompile(`^\s*[-*]\s`),
	regexp.MustCompile(`^\s*\d+\.\s`),
}

// Normalize 统一换行、去除不可见控制字符和行尾空白
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\u00a0' || r == '\u2007' || r == '\u202f':
			return ' '
		case r == '\n' || r == '\t':
			return r
		case unicode.IsControl(r) || r == '\ufeff':
			return -1
		}
		return r
	}, text)

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// CountWords 以空白分隔的词数
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CountBullets 以项目符号、短横线或编号开头的行数
func CountBullets(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		for _, p := range bulletPatterns {
			if p.MatchString(line) {
				n++
				break
			}
		}
	}
	return n
}

// Tokenize 把文本切分为小写词元，保留 + # . 以支持 c++ / c# / node.js，
// 丢弃长度小于3、非字母开头以及停用词
func Tokenize(text string) []string {
	var (
		out  []string
		word strings.Builder
	)
	flush := func() {
		w := strings.TrimRight(word.String(), ".")
		word.Reset()
		if len([]rune(w)) < 3 || IsStopWord(w) {
			return
		}
		if r := []rune(w)[0]; !unicode.IsLetter(r) {
			return
		}
		out = append(out, w)
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' || r == '.' {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return out
}

// ContainsWord 不区分大小写的整词或整短语查找
func ContainsWord(text, word string) bool {
	return containsWord(strings.ToLower(text), strings.ToLower(word))
}

// containsWord 在已小写的文本中查找整词（两侧均不是字母或数字）
func containsWord(lowerText, lowerWord string) bool {
	if lowerWord == "" {
		return false
	}
	from := 0
	for from <= len(lowerText)-len(lowerWord) {
		i := strings.Index(lowerText[from:], lowerWord)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(lowerWord)
		if boundaryBefore(lowerText, start) && boundaryAfter(lowerText, end) {
			return true
		}
		from = start + 1
	}
	return false
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !isWordRune(r)
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[i:])
	return !isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
