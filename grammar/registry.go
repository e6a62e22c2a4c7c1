package grammar

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

const (
	JavaScript = "javascript"
	TypeScript = "typescript"
	TSX        = "tsx"
	Python     = "python"
	Go         = "go"
	Java       = "java"
	Rust       = "rust"
	CPP        = "cpp"
)

// Builtin returns the statically linked grammars.
func Builtin() map[string]LoadFunc {
	return map[string]LoadFunc{
		JavaScript: static(javascript.GetLanguage),
		TypeScript: static(typescript.GetLanguage),
		TSX:        static(tsx.GetLanguage),
		Python:     static(python.GetLanguage),
		Go:         static(golang.GetLanguage),
		Java:       static(java.GetLanguage),
		Rust:       static(rust.GetLanguage),
		CPP:        static(cpp.GetLanguage),
	}
}

func static(fn func() *sitter.Language) LoadFunc {
	return func() (*sitter.Language, error) {
		return fn(), nil
	}
}
