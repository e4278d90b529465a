package bridge

// FromPlaintext converts raw text into a Document tree of paragraph
// leaves split on blank lines, with no heading structure.
func FromPlaintext(text, title string) *Document {
	return &Document{Title: title, Roots: paragraphNodes(text)}
}
