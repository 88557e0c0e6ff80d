// Package chunk splits extracted plain text into size-bounded,
// heading-aware chunks suitable for embedding and retrieval.
package chunk

import (
	"regexp"
	"strings"

	"github.com/memoracle/memoracle"
)

// Default splitter options.
const (
	DefaultMaxChunkSize = 1500
	DefaultMinChunkSize = 100
	DefaultOverlap      = 100
)

// Options configures a Splitter.
type Options struct {
	// MaxChunkSize is the upper bound on chunk length in characters.
	MaxChunkSize int
	// MinChunkSize is the length an accumulated chunk must reach on
	// paragraph overflow for the overlap to be carried into the next
	// chunk; a shorter chunk is still emitted, without overlap. A trailing
	// chunk shorter than it is merged into its neighbour when both fit.
	MinChunkSize int
	// Overlap is the number of trailing characters of the previous chunk
	// prepended to the next chunk within an oversize section.
	Overlap int
}

// DefaultOptions returns the default splitter options.
func DefaultOptions() Options {
	return Options{
		MaxChunkSize: DefaultMaxChunkSize,
		MinChunkSize: DefaultMinChunkSize,
		Overlap:      DefaultOverlap,
	}
}

// Chunk is one emitted slice of the input text. Offsets are approximate:
// they reflect the section start plus running accumulation and are used
// only for diagnostics. StartOffset advances by the length of the
// just-emitted chunk's new (non-overlap) text.
type Chunk struct {
	Content     string
	Heading     string
	StartOffset int
	EndOffset   int
	Index       int
}

var (
	paragraphRe = regexp.MustCompile(`\n\n+`)
	sentenceRe  = regexp.MustCompile(`[.!?]\s+`)
)

// Splitter is a deterministic size-and-heading-aware text splitter.
type Splitter struct {
	opts Options
}

// NewSplitter creates a Splitter. Zero or negative option fields fall
// back to the defaults; a negative overlap becomes 0.
func NewSplitter(opts Options) *Splitter {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = DefaultMaxChunkSize
	}
	if opts.MinChunkSize <= 0 {
		opts.MinChunkSize = DefaultMinChunkSize
	}
	if opts.Overlap < 0 {
		opts.Overlap = 0
	}
	return &Splitter{opts: opts}
}

// Split partitions text into chunks. Headings mark section boundaries;
// each chunk carries the heading of the section it came from. The
// returned chunks have dense indexes 0..N-1.
func (s *Splitter) Split(text string, headings []memoracle.Heading) []Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if len(text) <= s.opts.MaxChunkSize {
		heading := ""
		if len(headings) > 0 {
			heading = headings[0].Text
		}
		return reindex([]Chunk{{
			Content:     text,
			Heading:     heading,
			StartOffset: 0,
			EndOffset:   len(text),
		}})
	}

	var chunks []Chunk
	for _, sec := range splitSections(text, headings) {
		chunks = append(chunks, s.splitSection(sec)...)
	}
	chunks = s.mergeTrailing(chunks)
	return reindex(chunks)
}

// section is a run of text between heading breaks, labelled with the
// heading that precedes it.
type section struct {
	heading string
	text    string
	offset  int
}

// splitSections partitions text at the positions where each heading's
// literal text occurs. Headings that cannot be located are skipped.
func splitSections(text string, headings []memoracle.Heading) []section {
	type breakpoint struct {
		pos     int
		heading string
	}

	var breaks []breakpoint
	searchFrom := 0
	for _, h := range headings {
		needle := strings.TrimSpace(h.Text)
		if needle == "" {
			continue
		}
		idx := strings.Index(text[searchFrom:], needle)
		if idx < 0 {
			continue
		}
		pos := searchFrom + idx
		breaks = append(breaks, breakpoint{pos: pos, heading: needle})
		searchFrom = pos + len(needle)
	}

	if len(breaks) == 0 {
		return []section{{text: text}}
	}

	var sections []section
	if breaks[0].pos > 0 {
		head := strings.TrimSpace(text[:breaks[0].pos])
		if head != "" {
			sections = append(sections, section{text: head})
		}
	}
	for i, b := range breaks {
		end := len(text)
		if i+1 < len(breaks) {
			end = breaks[i+1].pos
		}
		body := strings.TrimSpace(text[b.pos:end])
		if body == "" {
			continue
		}
		sections = append(sections, section{
			heading: b.heading,
			text:    body,
			offset:  b.pos,
		})
	}
	return sections
}

// splitSection emits one chunk for a fitting section, or splits an
// oversize section by paragraphs with greedy accumulation and overlap.
func (s *Splitter) splitSection(sec section) []Chunk {
	if len(sec.text) <= s.opts.MaxChunkSize {
		return []Chunk{{
			Content:     sec.text,
			Heading:     sec.heading,
			StartOffset: sec.offset,
			EndOffset:   sec.offset + len(sec.text),
		}}
	}

	var chunks []Chunk
	currentOffset := sec.offset
	var current strings.Builder

	emit := func() {
		content := strings.TrimSpace(current.String())
		current.Reset()
		if content == "" {
			return
		}
		chunks = append(chunks, Chunk{
			Content:     content,
			Heading:     sec.heading,
			StartOffset: currentOffset,
			EndOffset:   currentOffset + len(content),
		})
		currentOffset += len(content)
	}

	appendPiece := func(piece string) {
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(piece)
	}

	for _, para := range paragraphRe.Split(sec.text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		for _, piece := range s.splitOversize(para) {
			if current.Len() > 0 && current.Len()+len(piece)+2 > s.opts.MaxChunkSize {
				if current.Len() >= s.opts.MinChunkSize {
					prev := current.String()
					emit()
					if s.opts.Overlap > 0 {
						tail := prev
						if len(tail) > s.opts.Overlap {
							tail = tail[len(tail)-s.opts.Overlap:]
						}
						current.WriteString(tail)
						currentOffset -= len(tail)
					}
				} else {
					emit()
				}
			}
			appendPiece(piece)
		}
	}
	emit()

	return chunks
}

// splitOversize breaks a paragraph exceeding the size limit into
// sentence pieces, falling back to word pieces. A single word longer
// than the limit is emitted whole.
func (s *Splitter) splitOversize(para string) []string {
	if len(para) <= s.opts.MaxChunkSize {
		return []string{para}
	}

	var pieces []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			pieces = append(pieces, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, sentence := range splitSentences(para) {
		if len(sentence) > s.opts.MaxChunkSize {
			// Word fallback.
			for _, word := range strings.Fields(sentence) {
				if current.Len() > 0 && current.Len()+len(word)+1 > s.opts.MaxChunkSize {
					flush()
				}
				if current.Len() > 0 {
					current.WriteString(" ")
				}
				current.WriteString(word)
			}
			continue
		}
		if current.Len() > 0 && current.Len()+len(sentence)+1 > s.opts.MaxChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	flush()

	return pieces
}

// splitSentences splits on sentence-ending punctuation followed by
// whitespace, keeping the punctuation with the preceding sentence.
func splitSentences(text string) []string {
	var sentences []string
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(text, -1) {
		// loc[0] is the punctuation mark; keep it.
		sentences = append(sentences, strings.TrimSpace(text[last:loc[0]+1]))
		last = loc[1]
	}
	if last < len(text) {
		tail := strings.TrimSpace(text[last:])
		if tail != "" {
			sentences = append(sentences, tail)
		}
	}
	return sentences
}

// mergeTrailing merges a trailing small chunk into its neighbour when the
// combined length still fits.
func (s *Splitter) mergeTrailing(chunks []Chunk) []Chunk {
	n := len(chunks)
	if n < 2 {
		return chunks
	}
	last := chunks[n-1]
	prev := chunks[n-2]
	if len(last.Content) >= s.opts.MinChunkSize {
		return chunks
	}
	if len(prev.Content)+len(last.Content)+2 > s.opts.MaxChunkSize {
		return chunks
	}
	prev.Content = prev.Content + "\n\n" + last.Content
	prev.EndOffset = last.EndOffset
	return append(chunks[:n-2], prev)
}

func reindex(chunks []Chunk) []Chunk {
	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks
}
