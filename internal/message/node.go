package message

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Node is one element of a parsed callback document. Requests keep the whole
// tree so unrecognised kinds lose nothing.
type Node struct {
	Name     string
	Text     string
	Children []*Node
}

// Child returns the first direct child named name (case-insensitive), or nil.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if strings.EqualFold(c.Name, name) {
			return c
		}
	}
	return nil
}

// Value returns the text of the named child exactly as received and whether
// it exists.
func (n *Node) Value(name string) (string, bool) {
	c := n.Child(name)
	if c == nil {
		return "", false
	}
	return c.Text, true
}

// Token returns the named child's text with surrounding whitespace removed.
// Use it for identifiers, discriminants and numbers, never for user text.
func (n *Node) Token(name string) (string, bool) {
	v, ok := n.Value(name)
	return strings.TrimSpace(v), ok
}

// Path walks nested children, e.g. Path("ScanCodeInfo", "ScanResult").
func (n *Node) Path(names ...string) *Node {
	cur := n
	for _, name := range names {
		cur = cur.Child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// Map flattens the direct children into name -> trimmed text. Nested
// elements map to their own (usually empty) text.
func (n *Node) Map() map[string]string {
	out := make(map[string]string, len(n.Children))
	for _, c := range n.Children {
		if _, dup := out[c.Name]; dup {
			continue
		}
		out[c.Name] = strings.TrimSpace(c.Text)
	}
	return out
}

var errEmptyDocument = errors.New("empty document")

// parseTree decodes a well-formed XML document into a Node tree. Attributes,
// comments and processing instructions are ignored; CDATA is plain text.
func parseTree(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true

	var (
		root  *Node
		stack []*Node
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("multiple root elements")
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, errEmptyDocument
	}
	return root, nil
}
