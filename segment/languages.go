package segment

import (
	"strings"

	"github.com/flarexio/codeindex/grammar"
)

const markdown = "markdown"

// nodeKinds lists the syntax node types that start a chunk for one grammar.
type nodeKinds struct {
	functions []string
	classes   []string
}

func (k nodeKinds) classify(nodeType string) (ChunkType, bool) {
	for _, t := range k.functions {
		if t == nodeType {
			return ChunkTypeFunction, true
		}
	}

	for _, t := range k.classes {
		if t == nodeType {
			return ChunkTypeClass, true
		}
	}

	return "", false
}

var kinds = map[string]nodeKinds{
	grammar.JavaScript: {
		functions: []string{"function_declaration", "generator_function_declaration", "method_definition"},
		classes:   []string{"class_declaration"},
	},
	grammar.TypeScript: {
		functions: []string{"function_declaration", "generator_function_declaration", "method_definition"},
		classes:   []string{"class_declaration", "abstract_class_declaration", "interface_declaration"},
	},
	grammar.TSX: {
		functions: []string{"function_declaration", "generator_function_declaration", "method_definition"},
		classes:   []string{"class_declaration", "abstract_class_declaration", "interface_declaration"},
	},
	grammar.Python: {
		functions: []string{"function_definition"},
		classes:   []string{"class_definition"},
	},
	grammar.Go: {
		functions: []string{"function_declaration", "method_declaration"},
		classes:   []string{"type_declaration"},
	},
	grammar.Java: {
		functions: []string{"method_declaration", "constructor_declaration"},
		classes:   []string{"class_declaration", "interface_declaration", "enum_declaration"},
	},
	grammar.Rust: {
		functions: []string{"function_item"},
		classes:   []string{"struct_item", "enum_item", "trait_item", "impl_item"},
	},
	grammar.CPP: {
		functions: []string{"function_definition"},
		classes:   []string{"class_specifier", "struct_specifier"},
	},
}

var aliases = map[string]string{
	"javascript": grammar.JavaScript,
	"js":         grammar.JavaScript,
	"jsx":        grammar.JavaScript,
	"mjs":        grammar.JavaScript,
	"cjs":        grammar.JavaScript,

	"typescript": grammar.TypeScript,
	"ts":         grammar.TypeScript,
	"mts":        grammar.TypeScript,
	"cts":        grammar.TypeScript,

	"tsx":             grammar.TSX,
	"typescriptreact": grammar.TSX,

	"python": grammar.Python,
	"py":     grammar.Python,

	"go":     grammar.Go,
	"golang": grammar.Go,

	"java": grammar.Java,

	"rust": grammar.Rust,
	"rs":   grammar.Rust,

	"cpp": grammar.CPP,
	"c++": grammar.CPP,
	"cc":  grammar.CPP,
	"cxx": grammar.CPP,
	"hpp": grammar.CPP,

	"markdown": markdown,
	"md":       markdown,
}

// Resolve maps a language name or alias onto a supported grammar identifier.
func Resolve(language string) (string, bool) {
	id, ok := aliases[strings.ToLower(strings.TrimSpace(language))]
	return id, ok
}
