package segment

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"go.uber.org/zap"
)

// Parser is the part of the grammar loader the segmenter depends on.
type Parser interface {
	CanParse(language string) bool
	Parse(ctx context.Context, code []byte, language string) (*sitter.Tree, error)
}

// Segmenter splits file content into chunks. It prefers syntax-aware
// segmentation and always falls back to blank-line segmentation, so it never
// reports an error.
type Segmenter struct {
	parser Parser
	log    *zap.Logger
}

func NewSegmenter(parser Parser, log *zap.Logger) *Segmenter {
	if log == nil {
		log = zap.L()
	}

	return &Segmenter{
		parser: parser,
		log: log.With(
			zap.String("component", "segmenter"),
		),
	}
}

// Languages lists the grammars available for syntax-aware segmentation.
func (s *Segmenter) Languages() []string {
	if l, ok := s.parser.(interface{ Languages() []string }); ok {
		return l.Languages()
	}

	return nil
}

func (s *Segmenter) Chunk(ctx context.Context, content, language string) []Chunk {
	if content == "" {
		return nil
	}

	lines := strings.Split(content, "\n")

	id, ok := Resolve(language)
	if ok {
		language = id
	}

	var chunks []Chunk
	switch {
	case !ok:

	case id == markdown:
		chunks = s.chunkMarkdown(content, lines)

	case s.parser != nil && s.parser.CanParse(id):
		chunks = s.chunkSyntax(ctx, content, lines, id)
	}

	if len(chunks) > 0 {
		return chunks
	}

	return chunkNaive(lines, language)
}

func (s *Segmenter) chunkSyntax(ctx context.Context, content string, lines []string, language string) (chunks []Chunk) {
	log := s.log.With(
		zap.String("action", "chunk_syntax"),
		zap.String("language", language),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Warn("syntax segmentation failed", zap.String("panic", fmt.Sprint(r)))
			chunks = nil
		}
	}()

	tree, err := s.parser.Parse(ctx, []byte(content), language)
	if err != nil {
		log.Warn("syntax segmentation failed", zap.Error(err))
		return nil
	}

	if tree == nil {
		return nil
	}
	defer tree.Close()

	k := kinds[language]

	// Every named child is visited whether or not its parent matched, so a
	// method inside a class yields both the class chunk and its own chunk.
	walk(tree.RootNode(), func(n *sitter.Node) {
		chunkType, ok := k.classify(n.Type())
		if !ok {
			return
		}

		start, end := span(n, len(lines))
		chunks = append(chunks, Chunk{
			Text:      strings.Join(lines[start:end+1], "\n"),
			StartLine: start + 1,
			EndLine:   end + 1,
			Type:      chunkType,
			Language:  language,
		})
	})

	return chunks
}

func walk(n *sitter.Node, visit func(*sitter.Node)) {
	if n == nil {
		return
	}

	visit(n)

	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		walk(n.NamedChild(i), visit)
	}
}

// span converts a node's points into 0-indexed inclusive line bounds.
func span(n *sitter.Node, lineCount int) (int, int) {
	start := int(n.StartPoint().Row)
	end := int(n.EndPoint().Row)

	// An end point at column 0 sits just past the node's final newline.
	if end > start && n.EndPoint().Column == 0 {
		end--
	}

	if end >= lineCount {
		end = lineCount - 1
	}

	if start > end {
		start = end
	}

	return start, end
}

func chunkNaive(lines []string, language string) []Chunk {
	var (
		chunks  []Chunk
		segment []string
		start   int
	)

	flush := func(end int) {
		text := strings.TrimSpace(strings.Join(segment, "\n"))
		segment = nil

		if text == "" {
			return
		}

		chunks = append(chunks, Chunk{
			Text:      text,
			StartLine: start + 1,
			EndLine:   end + 1,
			Type:      ChunkTypeText,
			Language:  language,
		})
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			if len(segment) > 0 {
				flush(i - 1)
			}

			continue
		}

		if len(segment) == 0 {
			start = i
		}

		segment = append(segment, line)
	}

	if len(segment) > 0 {
		flush(len(lines) - 1)
	}

	return chunks
}
