package postprocessors

import (
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/persona-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline implements PostProcessorPipeline.
// It chains multiple post-processors in order, starting with a Chunker.
type Pipeline struct {
	mu         sync.RWMutex
	processors []driven.PostProcessor
	sorted     bool
}

// NewPipeline creates a new post-processor pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{
		processors: make([]driven.PostProcessor, 0),
	}
}

// Add adds a processor to the pipeline.
// Processors are sorted by Order() before processing.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processors = append(p.processors, processor)
	p.sorted = false
}

// Process applies all processors in order.
// Input is the normalised document content plus the source kind's chunk
// policy. Output is the passages-to-be, renumbered contiguously.
func (p *Pipeline) Process(content string, policy driven.ChunkPolicy) []driven.Chunk {
	p.mu.Lock()
	if !p.sorted {
		sort.Slice(p.processors, func(i, j int) bool {
			return p.processors[i].Order() < p.processors[j].Order()
		})
		p.sorted = true
	}
	p.mu.Unlock()

	p.mu.RLock()
	processors := make([]driven.PostProcessor, len(p.processors))
	copy(processors, p.processors)
	p.mu.RUnlock()

	// Start with a single chunk containing all content
	chunks := []driven.Chunk{
		{
			Content:     content,
			Position:    0,
			StartOffset: 0,
			EndOffset:   len(content),
		},
	}

	// Apply each processor in order
	for _, proc := range processors {
		chunks = proc.Process(chunks, policy)
	}

	// Later stages may drop chunks; positions must stay contiguous
	for i := range chunks {
		chunks[i].Position = i
	}

	return chunks
}

// List returns processor names in order.
func (p *Pipeline) List() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, len(p.processors))
	for i, proc := range p.processors {
		names[i] = proc.Name()
	}
	return names
}

// DefaultPipeline creates a pipeline with the default processors.
func DefaultPipeline() *Pipeline {
	p := NewPipeline()
	p.Add(NewChunker(DefaultChunkConfig()))
	p.Add(NewWhitespaceNormalizer())
	p.Add(NewDeduplicator(DefaultDeduplicatorConfig()))
	return p
}

// ChunkConfig configures the chunker behavior.
type ChunkConfig struct {
	// MaxPassageLength is the maximum characters per passage
	MaxPassageLength int

	// Overlap is the target character overlap between adjacent passages
	Overlap int
}

// DefaultChunkConfig returns sensible defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxPassageLength: 1000,
		Overlap:          200,
	}
}

// Chunker splits content into overlapping passages while honoring the
// source kind's atomic units: a unit is never cut in half, and a unit
// longer than MaxPassageLength is kept whole as an oversized passage.
// This is the first processor in the pipeline (Order = 0).
type Chunker struct {
	config ChunkConfig
}

// Verify interface compliance
var _ driven.PostProcessor = (*Chunker)(nil)

// NewChunker creates a new chunker with the given config. Out-of-range
// values are clamped: MaxPassageLength must be positive, and Overlap must
// stay within 0..MaxPassageLength-1.
func NewChunker(config ChunkConfig) *Chunker {
	if config.MaxPassageLength <= 0 {
		config.MaxPassageLength = DefaultChunkConfig().MaxPassageLength
	}
	if config.Overlap < 0 {
		config.Overlap = 0
	}
	if config.Overlap >= config.MaxPassageLength {
		config.Overlap = config.MaxPassageLength / 2
	}
	return &Chunker{config: config}
}

// Process splits content into chunks.
func (c *Chunker) Process(chunks []driven.Chunk, policy driven.ChunkPolicy) []driven.Chunk {
	var result []driven.Chunk
	position := 0

	for _, chunk := range chunks {
		newChunks := c.splitContent(chunk.Content, chunk.StartOffset, policy, &position)
		result = append(result, newChunks...)
	}

	return result
}

// Name returns the processor name.
func (c *Chunker) Name() string {
	return "chunker"
}

// Order returns 0 - chunker should be first.
func (c *Chunker) Order() int {
	return 0
}

// unit is a span of content that must not be split internally.
type unit struct {
	start int
	end   int
}

// splitContent packs atomic units into overlapping chunks.
func (c *Chunker) splitContent(content string, baseOffset int, policy driven.ChunkPolicy, position *int) []driven.Chunk {
	units := splitUnits(content, policy.AtomicSeparator)
	if len(units) == 0 {
		chunk := driven.Chunk{
			Content:     content,
			Position:    *position,
			StartOffset: baseOffset,
			EndOffset:   baseOffset + len(content),
		}
		*position++
		return []driven.Chunk{chunk}
	}

	var chunks []driven.Chunk
	i := 0

	for i < len(units) {
		// Extend the window while the next unit still fits.
		// A single oversized unit becomes its own chunk, kept whole.
		j := i
		for j+1 < len(units) && units[j+1].end-units[i].start <= c.config.MaxPassageLength {
			j++
		}

		chunk := driven.Chunk{
			Content:     content[units[i].start:units[j].end],
			Position:    *position,
			StartOffset: baseOffset + units[i].start,
			EndOffset:   baseOffset + units[j].end,
		}
		chunks = append(chunks, chunk)
		*position++

		if j == len(units)-1 {
			break
		}

		// Step back over trailing units that fall inside the overlap
		// window, always advancing past the first unit of this chunk.
		next := j + 1
		for next-1 > i && units[next-1].start >= units[j].end-c.config.Overlap {
			next--
		}
		i = next
	}

	return chunks
}

// splitUnits cuts content into atomic units on the separator.
// The non-whitespace tail of the separator belongs to the following unit,
// so a "\n@@" separator leaves the hunk header on the next unit. An empty
// separator yields the whole content as one unit. Whitespace-only units
// are dropped.
func splitUnits(content string, separator string) []unit {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if separator == "" {
		return []unit{{start: 0, end: len(content)}}
	}

	wsLen := 0
	for wsLen < len(separator) && (separator[wsLen] == '\n' || separator[wsLen] == ' ' || separator[wsLen] == '\t') {
		wsLen++
	}
	if wsLen == 0 {
		wsLen = len(separator)
	}

	var units []unit
	start := 0
	search := 0
	for {
		idx := strings.Index(content[search:], separator)
		if idx == -1 {
			break
		}
		cut := search + idx + wsLen
		units = append(units, unit{start: start, end: search + idx})
		start = cut
		search = cut + (len(separator) - wsLen)
		if search > len(content) {
			search = len(content)
		}
	}
	units = append(units, unit{start: start, end: len(content)})

	// Trim each unit to its non-whitespace extent, dropping empty ones
	result := units[:0]
	for _, u := range units {
		s, e := u.start, u.end
		for s < e && isSpace(content[s]) {
			s++
		}
		for e > s && isSpace(content[e-1]) {
			e--
		}
		if s < e {
			result = append(result, unit{start: s, end: e})
		}
	}
	return result
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// DeduplicatorConfig configures the deduplicator.
type DeduplicatorConfig struct {
	// MinDuplicateLength is the minimum chunk length to check for duplicates
	MinDuplicateLength int
}

// DefaultDeduplicatorConfig returns sensible defaults.
func DefaultDeduplicatorConfig() DeduplicatorConfig {
	return DeduplicatorConfig{
		MinDuplicateLength: 50,
	}
}

// Deduplicator removes chunks whose normalised content repeats an earlier
// chunk. Repeated boilerplate (signatures, footers) would otherwise crowd
// retrieval results.
type Deduplicator struct {
	config DeduplicatorConfig
}

// Verify interface compliance
var _ driven.PostProcessor = (*Deduplicator)(nil)

// NewDeduplicator creates a new deduplicator with the given config.
func NewDeduplicator(config DeduplicatorConfig) *Deduplicator {
	return &Deduplicator{config: config}
}

// Process removes duplicate chunks.
func (d *Deduplicator) Process(chunks []driven.Chunk, _ driven.ChunkPolicy) []driven.Chunk {
	if len(chunks) <= 1 {
		return chunks
	}

	seen := make(map[string]bool)
	var result []driven.Chunk

	for _, chunk := range chunks {
		if len(chunk.Content) < d.config.MinDuplicateLength {
			result = append(result, chunk)
			continue
		}

		// Normalize for comparison
		normalized := strings.TrimSpace(strings.ToLower(chunk.Content))

		if !seen[normalized] {
			seen[normalized] = true
			result = append(result, chunk)
		}
	}

	return result
}

// Name returns the processor name.
func (d *Deduplicator) Name() string {
	return "deduplicator"
}

// Order returns 10 - deduplicator runs after chunker.
func (d *Deduplicator) Order() int {
	return 10
}

// WhitespaceNormalizer normalizes whitespace in chunks.
type WhitespaceNormalizer struct{}

// Verify interface compliance
var _ driven.PostProcessor = (*WhitespaceNormalizer)(nil)

// NewWhitespaceNormalizer creates a new whitespace normalizer.
func NewWhitespaceNormalizer() *WhitespaceNormalizer {
	return &WhitespaceNormalizer{}
}

// Process normalizes whitespace in chunks.
func (w *WhitespaceNormalizer) Process(chunks []driven.Chunk, _ driven.ChunkPolicy) []driven.Chunk {
	result := make([]driven.Chunk, 0, len(chunks))

	for _, chunk := range chunks {
		content := chunk.Content

		// Normalize line endings
		content = strings.ReplaceAll(content, "\r\n", "\n")
		content = strings.ReplaceAll(content, "\r", "\n")

		// Collapse multiple spaces (but preserve newlines)
		lines := strings.Split(content, "\n")
		for i, line := range lines {
			for strings.Contains(line, "  ") {
				line = strings.ReplaceAll(line, "  ", " ")
			}
			lines[i] = strings.TrimSpace(line)
		}
		content = strings.Join(lines, "\n")

		// Remove excessive blank lines
		for strings.Contains(content, "\n\n\n") {
			content = strings.ReplaceAll(content, "\n\n\n", "\n\n")
		}

		content = strings.TrimSpace(content)

		if len(content) > 0 {
			newChunk := chunk
			newChunk.Content = content
			result = append(result, newChunk)
		}
	}

	return result
}

// Name returns the processor name.
func (w *WhitespaceNormalizer) Name() string {
	return "whitespace-normalizer"
}

// Order returns 5 - runs between chunker and deduplicator.
func (w *WhitespaceNormalizer) Order() int {
	return 5
}
