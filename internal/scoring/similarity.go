package scoring

import (
	"math"
	"strings"
	"unicode/utf8"

	"ats-scanner/internal/signals"

	"github.com/agnivade/levenshtein"
)

// similarity 基于编辑距离的归一化相似度 (lenA+lenB-dist)/(lenA+lenB)，取值 [0,1]
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	total := utf8.RuneCountInString(a) + utf8.RuneCountInString(b)
	if total == 0 {
		return 1
	}
	return float64(total-levenshtein.ComputeDistance(a, b)) / float64(total)
}

// KeywordRelevance 候选人关键词与岗位描述原文的 TF-IDF 余弦相似度。
// idf 采用平滑形式 ln((1+n)/(1+df))+1，向量按 L2 归一化。
func KeywordRelevance(keywords []string, jd string) float64 {
	resumeTokens := signals.Tokenize(strings.Join(keywords, " "))
	jdTokens := signals.Tokenize(jd)
	if len(resumeTokens) == 0 || len(jdTokens) == 0 {
		return 0
	}

	docs := []map[string]float64{termFreq(resumeTokens), termFreq(jdTokens)}
	df := map[string]int{}
	for _, d := range docs {
		for term := range d {
			df[term]++
		}
	}

	n := float64(len(docs))
	for _, d := range docs {
		for term, tf := range d {
			d[term] = tf * (math.Log((1+n)/(1+float64(df[term]))) + 1)
		}
	}
	return cosine(docs[0], docs[1])
}

func termFreq(tokens []string) map[string]float64 {
	tf := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

func cosine(a, b map[string]float64) float64 {
	var dot, na, nb float64
	for term, v := range a {
		na += v * v
		if w, ok := b[term]; ok {
			dot += v * w
		}
	}
	for _, w := range b {
		nb += w * w
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) {
		return 0
	}
	return math.Min(sim, 1)
}
