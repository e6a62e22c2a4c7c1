package segment

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"
)

// chunkMarkdown cuts a document into one block per heading section. Text
// before the first heading becomes its own block.
func (s *Segmenter) chunkMarkdown(content string, lines []string) (chunks []Chunk) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("markdown segmentation failed",
				zap.String("action", "chunk_markdown"),
				zap.String("panic", fmt.Sprint(r)),
			)
			chunks = nil
		}
	}()

	source := []byte(content)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var starts []int
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Lines().Len() == 0 {
			continue
		}

		offset := heading.Lines().At(0).Start
		starts = append(starts, bytes.Count(source[:offset], []byte("\n")))
	}

	if len(starts) == 0 {
		return nil
	}

	if starts[0] > 0 {
		starts = append([]int{0}, starts...)
	}

	for i, start := range starts {
		end := len(lines) - 1
		if i+1 < len(starts) {
			end = starts[i+1] - 1
		}

		for start <= end && strings.TrimSpace(lines[start]) == "" {
			start++
		}

		for end >= start && strings.TrimSpace(lines[end]) == "" {
			end--
		}

		if start > end {
			continue
		}

		chunks = append(chunks, Chunk{
			Text:      strings.Join(lines[start:end+1], "\n"),
			StartLine: start + 1,
			EndLine:   end + 1,
			Type:      ChunkTypeBlock,
			Language:  markdown,
		})
	}

	return chunks
}
