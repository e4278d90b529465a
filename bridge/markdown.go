package bridge

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	frontmatterRE = regexp.MustCompile(`(?s)\A---\s*\n(.*?\n)---\s*\n?`)
	headingRE     = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+)$`)
	wikilinkRE    = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	embedRE       = regexp.MustCompile(`!\[\[([^\]]+)\]\]`)
	dataviewRE    = regexp.MustCompile("(?s)```dataview\\s*\\n.*?\\n```")
	codeBlockRE   = regexp.MustCompile("(?s)```.*?```")
	inlineCodeRE  = regexp.MustCompile("`[^`]+`")
	headingLineRE = regexp.MustCompile(`(?m)^#{1,6}[ \t]+.*$`)
	inlineTagRE   = regexp.MustCompile(`(^|[^\S\n])#([\w][\w/-]*)`)
	blankLineRE   = regexp.MustCompile(`\n[ \t]*\n`)
)

// FromMarkdown converts Obsidian-flavored Markdown text into a Document
// tree: frontmatter is stripped, dataview blocks removed, wikilinks and
// embeds rewritten/collected, and the body partitioned at headings with
// each segment nested under its nearest shallower heading.
func FromMarkdown(text, title string) *Document {
	doc := &Document{Title: title}

	frontmatter, body := extractFrontmatter(text)
	body = dataviewRE.ReplaceAllString(body, "")

	body, embeds := extractEmbeds(body)
	doc.Embeds = embeds

	body, links := convertWikilinks(body)
	doc.Links = links

	doc.Tags = extractTags(body, frontmatter)

	if strings.TrimSpace(body) == "" {
		return doc
	}

	doc.Roots = partitionHeadings(body)
	return doc
}

func extractFrontmatter(text string) (map[string]any, string) {
	m := frontmatterRE.FindStringSubmatch(text)
	if m == nil {
		return nil, text
	}
	var fm map[string]any
	if err := yaml.Unmarshal([]byte(m[1]), &fm); err != nil {
		return nil, text[len(m[0]):]
	}
	return fm, text[len(m[0]):]
}

func extractEmbeds(text string) (string, []string) {
	var embeds []string
	cleaned := embedRE.ReplaceAllStringFunc(text, func(m string) string {
		target := embedRE.FindStringSubmatch(m)[1]
		embeds = append(embeds, target)
		return ""
	})
	return cleaned, embeds
}

// convertWikilinks rewrites [[target]] to "target" and [[target|display]]
// to "display (target)", collecting every referenced target.
func convertWikilinks(text string) (string, []string) {
	var links []string
	converted := wikilinkRE.ReplaceAllStringFunc(text, func(m string) string {
		inner := wikilinkRE.FindStringSubmatch(m)[1]
		if idx := strings.Index(inner, "|"); idx >= 0 {
			target := strings.TrimSpace(inner[:idx])
			display := strings.TrimSpace(inner[idx+1:])
			links = append(links, target)
			return display + " (" + target + ")"
		}
		target := strings.TrimSpace(inner)
		links = append(links, target)
		return target
	})
	return converted, links
}

// extractTags collects tags from frontmatter's "tags" field plus inline
// #tag references, skipping fenced/inline code and heading lines.
func extractTags(body string, frontmatter map[string]any) []string {
	seen := map[string]bool{}
	var tags []string
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}

	if frontmatter != nil {
		switch v := frontmatter["tags"].(type) {
		case []any:
			for _, t := range v {
				if s, ok := t.(string); ok {
					add(s)
				}
			}
		case string:
			for _, t := range strings.Split(v, ",") {
				add(strings.TrimSpace(t))
			}
		}
	}

	cleaned := codeBlockRE.ReplaceAllString(body, "")
	cleaned = inlineCodeRE.ReplaceAllString(cleaned, "")
	cleaned = headingLineRE.ReplaceAllString(cleaned, "")

	for _, m := range inlineTagRE.FindAllStringSubmatch(cleaned, -1) {
		add(m[2])
	}
	return tags
}

// partitionHeadings splits body into heading/paragraph segments and
// nests each under the nearest shallower heading, matching the rooted
// tree shape used for EPUB and plaintext.
func partitionHeadings(body string) []*Node {
	locs := headingRE.FindAllStringSubmatchIndex(body, -1)
	if len(locs) == 0 {
		return paragraphNodes(body)
	}

	var roots []*Node
	stack := map[int]*Node{} // heading level -> most recent node at that level

	attach := func(level int, node *Node) {
		var parent *Node
		for lv := level - 1; lv >= 1; lv-- {
			if p, ok := stack[lv]; ok {
				parent = p
				break
			}
		}
		if parent != nil {
			parent.Children = append(parent.Children, node)
		} else {
			roots = append(roots, node)
		}
	}

	preamble := body[:locs[0][0]]
	roots = append(roots, paragraphNodes(preamble)...)

	for i, loc := range locs {
		hashes := body[loc[2]:loc[3]]
		headingText := strings.TrimSpace(body[loc[4]:loc[5]])
		level := len(hashes)

		bodyStart := loc[1]
		bodyEnd := len(body)
		if i+1 < len(locs) {
			bodyEnd = locs[i+1][0]
		}
		segment := body[bodyStart:bodyEnd]

		node := newHeading(level, headingText)
		attach(level, node)

		for lv := range stack {
			if lv > level {
				delete(stack, lv)
			}
		}
		stack[level] = node

		node.Children = append(node.Children, paragraphNodes(segment)...)
	}

	return roots
}

// paragraphNodes splits text on blank-line boundaries into paragraph
// leaf nodes, skipping empty fragments.
func paragraphNodes(text string) []*Node {
	var nodes []*Node
	for _, para := range blankLineRE.Split(strings.TrimSpace(text), -1) {
		para = strings.TrimSpace(para)
		if para != "" {
			nodes = append(nodes, newParagraph(para))
		}
	}
	return nodes
}
