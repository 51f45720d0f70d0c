package parser

import (
	"encoding/xml"
	"strings"
)

// node is a generic, namespace-agnostic representation of one XML element.
// Decoding into node rather than a domain-shaped struct lets the walker
// match elements by local name only, which is required here because grant
// archives carry inconsistent namespace prefixes across years.
type node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []node     `xml:",any"`
}

func (n node) attr(local string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

// innerText concatenates this node's character data with that of every
// descendant, in document order.
func innerText(n node) string {
	var sb strings.Builder
	sb.WriteString(n.Content)
	for _, c := range n.Nodes {
		sb.WriteString(innerText(c))
	}
	return sb.String()
}

// firstDescendant returns the first node anywhere under n (n itself
// excluded) whose local name matches, via pre-order depth-first search.
func firstDescendant(n node, localName string) (node, bool) {
	for _, c := range n.Nodes {
		if c.XMLName.Local == localName {
			return c, true
		}
		if found, ok := firstDescendant(c, localName); ok {
			return found, ok
		}
	}
	return node{}, false
}

// collectDescendants returns every node anywhere under n whose local name
// matches, in document order.
func collectDescendants(n node, localName string) []node {
	var out []node
	for _, c := range n.Nodes {
		if c.XMLName.Local == localName {
			out = append(out, c)
		}
		out = append(out, collectDescendants(c, localName)...)
	}
	return out
}

// directChildren returns n's immediate children whose local name matches.
func directChildren(n node, localName string) []node {
	var out []node
	for _, c := range n.Nodes {
		if c.XMLName.Local == localName {
			out = append(out, c)
		}
	}
	return out
}

// sectionNodes finds every node anywhere under n whose local name is in
// names, in document order, without recursing into the interior of a match
// (sections do not nest within themselves in grant XML).
func sectionNodes(n node, names map[string]bool) []node {
	var out []node
	var walk func(nd node)
	walk = func(nd node) {
		for _, c := range nd.Nodes {
			if names[c.XMLName.Local] {
				out = append(out, c)
				continue
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// paragraphsExcluding collects the inner text of every <p> descendant of n,
// skipping entirely any subtree rooted at a node whose local name is in
// exclude. Used to keep description paragraphs disjoint from paragraphs
// already captured under a nested summary subtree.
func paragraphsExcluding(n node, exclude map[string]bool) []string {
	var out []string
	var walk func(nd node)
	walk = func(nd node) {
		for _, c := range nd.Nodes {
			if exclude[c.XMLName.Local] {
				continue
			}
			if c.XMLName.Local == "p" {
				out = append(out, innerText(c))
			}
			walk(c)
		}
	}
	walk(n)
	return out
}
