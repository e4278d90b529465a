package bridge

import "strconv"

// Chapter is one EPUB chapter as produced by an external EPUB parser:
// its ordinal number and extracted text body.
type Chapter struct {
	Number int
	Text   string
}

// FromEPUB converts a list of parsed chapters into a Document tree with
// one level-1 heading per chapter, its paragraphs nested beneath it.
func FromEPUB(chapters []Chapter, title string) *Document {
	doc := &Document{Title: title}
	for _, ch := range chapters {
		heading := newHeading(1, "Chapter "+strconv.Itoa(ch.Number))
		heading.Children = paragraphNodes(ch.Text)
		doc.Roots = append(doc.Roots, heading)
	}
	return doc
}
