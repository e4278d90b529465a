// Package bridge converts heterogeneous parser output (Markdown,
// Obsidian-flavored wikilinks, EPUB chapters, plaintext) into a single
// document tree of heading and paragraph nodes that the chunker can
// walk uniformly regardless of source format.
package bridge

// Kind distinguishes the two node variants in a document tree.
type Kind int

const (
	KindHeading Kind = iota
	KindParagraph
)

// Node is one element of a document tree: either a heading (with a
// level 1-6 and nested children) or a leaf paragraph of text.
type Node struct {
	Kind     Kind
	Level    int    // 1-6, meaningful only for KindHeading
	Text     string // heading text or paragraph text
	Children []*Node
}

// Document is a parsed source reduced to a rooted tree of Node values,
// plus metadata collected while walking the source (wikilink/embed
// targets, tags).
type Document struct {
	Title    string
	Roots    []*Node
	Links    []string // wikilink targets
	Embeds   []string // transclusion targets
	Tags     []string
}

func newHeading(level int, text string) *Node {
	return &Node{Kind: KindHeading, Level: level, Text: text}
}

func newParagraph(text string) *Node {
	return &Node{Kind: KindParagraph, Text: text}
}
