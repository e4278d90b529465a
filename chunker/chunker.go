// Package chunker walks a bridge document tree into token-bounded,
// heading-contextualised, overlapping chunks.
package chunker

import (
	"math"
	"strings"

	"github.com/ragling/ragling/bridge"
)

// Config controls chunking behaviour.
type Config struct {
	MaxTokens int // Maximum estimated tokens per chunk, headings included; a single sentence or heading prefix longer than this is kept whole.
	Overlap   int // Token overlap between consecutive chunks within one leaf.
}

// Chunk is one chunker-produced unit ready for embedding and persistence.
type Chunk struct {
	Text       string // ancestral headings prefixed onto the leaf text
	TokenCount int
	Metadata   map[string]string
}

// Chunker converts a bridge.Document into Chunk records.
type Chunker struct {
	cfg Config
}

// New returns a Chunker with the given configuration. Zero-value fields
// are replaced with sensible defaults.
func New(cfg Config) *Chunker {
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Overlap == 0 {
		cfg.Overlap = 64
	}
	return &Chunker{cfg: cfg}
}

// Chunk walks doc's tree producing contextualised chunks. extraMetadata
// is attached verbatim to every chunk (e.g. sender/recipients/date for
// email, url/feed_name for RSS); it may be nil.
func (c *Chunker) Chunk(doc *bridge.Document, extraMetadata map[string]string) []Chunk {
	var out []Chunk
	c.walk(nil, doc.Roots, extraMetadata, &out)
	return out
}

// walk accumulates consecutive paragraph siblings into one chunking
// run, flushing them (as chunks prefixed by ancestorHeadings) whenever
// a heading sibling is encountered or the node list ends. This is what
// keeps chunk boundaries from ever crossing a heading.
func (c *Chunker) walk(ancestorHeadings []string, nodes []*bridge.Node, extra map[string]string, out *[]Chunk) {
	var paraBuf []string

	flush := func() {
		if len(paraBuf) == 0 {
			return
		}
		text := strings.Join(paraBuf, "\n\n")
		prefix := contextPrefix(ancestorHeadings)
		budget := c.cfg.MaxTokens - estimateTokens(prefix)
		if budget < 1 {
			budget = 1
		}
		for _, fragment := range splitContent(text, budget, c.cfg.Overlap) {
			full := fragment
			if prefix != "" {
				full = prefix + "\n\n" + fragment
			}
			*out = append(*out, Chunk{
				Text:       full,
				TokenCount: estimateTokens(full),
				Metadata:   extra,
			})
		}
		paraBuf = nil
	}

	for _, n := range nodes {
		switch n.Kind {
		case bridge.KindParagraph:
			paraBuf = append(paraBuf, n.Text)
		case bridge.KindHeading:
			flush()
			children := append(append([]string{}, ancestorHeadings...), n.Text)
			c.walk(children, n.Children, extra, out)
		}
	}
	flush()
}

// contextPrefix concatenates ancestral heading texts in a fixed,
// breadcrumb-style separator.
func contextPrefix(headings []string) string {
	return strings.Join(headings, " > ")
}

// splitContent breaks text into fragments that each fit within
// maxTokens, splitting at paragraph and then sentence boundaries.
// Consecutive fragments share an overlap of maxOverlap tokens worth of
// trailing text from the previous fragment, whenever that overlap fits
// alongside the next paragraph or sentence. A single sentence longer than
// maxTokens is kept whole and so exceeds it.
func splitContent(text string, maxTokens, maxOverlap int) []string {
	if estimateTokens(text) <= maxTokens {
		return []string{strings.TrimSpace(text)}
	}

	paragraphs := splitParagraphs(text)
	var fragments []string
	var current strings.Builder
	currentTokens := 0
	overlapText := ""

	for _, para := range paragraphs {
		paraTokens := estimateTokens(para)

		if paraTokens > maxTokens {
			if current.Len() > 0 {
				fragments = append(fragments, strings.TrimSpace(current.String()))
				overlapText = extractOverlap(current.String(), maxOverlap)
				current.Reset()
				currentTokens = 0
			}
			sentenceFragments := splitBySentences(para, maxTokens, maxOverlap, overlapText)
			fragments = append(fragments, sentenceFragments...)
			if len(sentenceFragments) > 0 {
				overlapText = extractOverlap(sentenceFragments[len(sentenceFragments)-1], maxOverlap)
			}
			continue
		}

		if currentTokens+paraTokens > maxTokens && current.Len() > 0 {
			fragments = append(fragments, strings.TrimSpace(current.String()))
			overlapText = extractOverlap(current.String(), maxOverlap)
			current.Reset()
			currentTokens = 0

			if overlapText != "" && estimateTokens(overlapText)+paraTokens <= maxTokens {
				current.WriteString(overlapText)
				current.WriteString("\n\n")
				currentTokens = estimateTokens(overlapText)
			}
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
		currentTokens += paraTokens
	}

	if current.Len() > 0 {
		fragments = append(fragments, strings.TrimSpace(current.String()))
	}

	return fragments
}

// splitBySentences breaks a paragraph into fragments at sentence
// boundaries, respecting maxTokens and prepending overlap from the
// previous fragment.
func splitBySentences(text string, maxTokens, maxOverlap int, initialOverlap string) []string {
	sentences := splitSentences(text)
	var fragments []string
	var current strings.Builder
	currentTokens := 0

	if initialOverlap != "" {
		current.WriteString(initialOverlap)
		current.WriteString(" ")
		currentTokens = estimateTokens(initialOverlap)
	}

	for _, sent := range sentences {
		sentTokens := estimateTokens(sent)

		if currentTokens+sentTokens > maxTokens && current.Len() > 0 {
			fragments = append(fragments, strings.TrimSpace(current.String()))
			overlap := extractOverlap(current.String(), maxOverlap)
			current.Reset()
			currentTokens = 0
			if overlap != "" && estimateTokens(overlap)+sentTokens <= maxTokens {
				current.WriteString(overlap)
				current.WriteString(" ")
				currentTokens = estimateTokens(overlap)
			}
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		currentTokens += sentTokens
	}

	if current.Len() > 0 {
		fragments = append(fragments, strings.TrimSpace(current.String()))
	}

	return fragments
}

// estimateTokens approximates the token count of text using a
// word-based heuristic: tokens ~ words * 1.3.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Ceil(float64(words) * 1.3))
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences is a simple sentence tokeniser: it splits on
// period/question-mark/exclamation followed by whitespace or end of
// string.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				s := strings.TrimSpace(cur.String())
				if s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if cur.Len() > 0 {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

// extractOverlap returns the trailing portion of text whose estimated
// token count is at most maxTokens, at word granularity.
func extractOverlap(text string, maxTokens int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	maxWords := int(float64(maxTokens) / 1.3)
	if maxWords > len(words) {
		maxWords = len(words)
	}
	if maxWords == 0 {
		return ""
	}
	return strings.Join(words[len(words)-maxWords:], " ")
}
