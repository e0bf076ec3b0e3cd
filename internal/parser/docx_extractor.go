package parser

import (
	"bytes"
	"context"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

var (
	xmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	inlineSpacePattn = regexp.MustCompile(`[ \t\r\f\v]+`)
)

// DocxExtractor 读取 word/document.xml 并去掉标记
type DocxExtractor struct{}

// NewDocxExtractor 创建 DOCX 提取器
func NewDocxExtractor() *DocxExtractor {
	return &DocxExtractor{}
}

// Extract 段落之间保留换行
func (e *DocxExtractor) Extract(_ context.Context, data []byte, filename string) (string, map[string]string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", nil, newExtractionError(filename, FormatDOCX, ErrCorruptDocument, err)
	}
	defer doc.Close()

	text, paragraphs := docxXMLToText(doc.Editable().GetContent())
	return text, map[string]string{
		"paragraphs": strconv.Itoa(paragraphs),
		"extractor":  "docx",
	}, nil
}

// docxXMLToText 返回文本和非空段落数
func docxXMLToText(raw string) (string, int) {
	raw = strings.ReplaceAll(raw, "</w:p>", "\n")
	raw = strings.ReplaceAll(raw, "<w:tab/>", "\t")
	raw = strings.ReplaceAll(raw, "<w:br/>", "\n")
	raw = xmlTagPattern.ReplaceAllString(raw, "")
	raw = html.UnescapeString(raw)

	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(inlineSpacePattn.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), len(lines)
}
