package segment

// ChunkType labels how a chunk was produced.
type ChunkType string

const (
	ChunkTypeFunction ChunkType = "function"
	ChunkTypeClass    ChunkType = "class"
	ChunkTypeBlock    ChunkType = "block"
	ChunkTypeText     ChunkType = "text"
)

// Chunk is a contiguous span of source text. Line numbers are 1-indexed and
// inclusive on both ends.
type Chunk struct {
	Text      string    `json:"text"`
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	Type      ChunkType `json:"type"`
	Language  string    `json:"language,omitempty"`
}
