package bridge

import "github.com/ragling/ragling/parser"

// FromParseResult converts a parser.ParseResult section tree (produced by an
// out-of-scope format collaborator: PDF, DOCX, PPTX, XLSX) into the same
// Heading/Paragraph tree the markdown, EPUB, and plaintext bridges produce,
// so the chunker never needs to know which parser a document came from.
func FromParseResult(pr *parser.ParseResult, title string) *Document {
	doc := &Document{Title: title}
	if pr == nil {
		return doc
	}
	doc.Roots = sectionsToNodes(pr.Sections)
	return doc
}

func sectionsToNodes(sections []parser.Section) []*Node {
	nodes := make([]*Node, 0, len(sections))
	for _, s := range sections {
		if s.Heading == "" {
			nodes = append(nodes, paragraphNodes(s.Content)...)
			nodes = append(nodes, sectionsToNodes(s.Children)...)
			continue
		}
		level := s.Level
		if level <= 0 {
			level = 1
		}
		heading := newHeading(level, s.Heading)
		heading.Children = append(heading.Children, paragraphNodes(s.Content)...)
		heading.Children = append(heading.Children, sectionsToNodes(s.Children)...)
		nodes = append(nodes, heading)
	}
	return nodes
}
