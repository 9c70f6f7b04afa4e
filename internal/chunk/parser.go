package chunk

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Parser drives a tree-sitter grammar selected by the language registry and
// converts the resulting tree into the chunker's own Node representation,
// so the rest of the package never touches the sitter API directly.
type Parser struct {
	parser   *sitter.Parser
	registry *LanguageRegistry
}

// NewParser builds a parser against the default, built-in language registry.
func NewParser() *Parser {
	return &Parser{
		parser:   sitter.NewParser(),
		registry: DefaultRegistry(),
	}
}

// NewParserWithRegistry builds a parser against a caller-supplied registry,
// for tests that need a narrower or stubbed set of languages.
func NewParserWithRegistry(registry *LanguageRegistry) *Parser {
	return &Parser{
		parser:   sitter.NewParser(),
		registry: registry,
	}
}

// Parse parses source into a Tree for the named language. language must be
// one of the registry's configured names (see LanguageConfig.Name), not a
// file extension.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.GetTreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", language)
	}

	p.parser.SetLanguage(tsLang)

	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("failed to parse source: nil tree")
	}

	root := convertNode(tsTree.RootNode(), source)

	return &Tree{
		Root:     root,
		Source:   source,
		Language: language,
	}, nil
}

// Close releases the underlying tree-sitter parser. Safe to call on a zero
// Parser or after a failed NewParser.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// convertNode walks a tree-sitter node recursively into the package's own
// Node tree, detaching chunk construction from the sitter library's types.
func convertNode(tsNode *sitter.Node, source []byte) *Node {
	if tsNode == nil {
		return nil
	}

	node := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartPoint: Point{
			Row:    tsNode.StartPoint().Row,
			Column: tsNode.StartPoint().Column,
		},
		EndPoint: Point{
			Row:    tsNode.EndPoint().Row,
			Column: tsNode.EndPoint().Column,
		},
		HasError: tsNode.HasError(),
		Children: make([]*Node, 0, int(tsNode.ChildCount())),
	}

	for i := uint32(0); i < tsNode.ChildCount(); i++ {
		if child := tsNode.Child(int(i)); child != nil {
			node.Children = append(node.Children, convertNode(child, source))
		}
	}

	return node
}

// GetContent returns the slice of source the node spans, or "" if its byte
// range is empty or falls outside source (stale node against new content).
func (n *Node) GetContent(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the node's first direct child of nodeType, or nil.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// FindChildrenByType returns all direct children of nodeType.
func (n *Node) FindChildrenByType(nodeType string) []*Node {
	var result []*Node
	for _, child := range n.Children {
		if child.Type == nodeType {
			result = append(result, child)
		}
	}
	return result
}

// FindAllByType returns every node of nodeType in the subtree rooted at n,
// including n itself.
func (n *Node) FindAllByType(nodeType string) []*Node {
	var result []*Node

	if n.Type == nodeType {
		result = append(result, n)
	}
	for _, child := range n.Children {
		result = append(result, child.FindAllByType(nodeType)...)
	}

	return result
}

// Walk visits n and its descendants depth-first, pre-order, stopping a
// branch's descent (but not traversal of siblings already queued) when fn
// returns false for the current node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Symbol extracts the declaration name from a function/class/type node by
// looking for its first direct child whose node type ends in "identifier"
// -- the convention nearly every tree-sitter grammar uses for the name
// slot of a declaration (identifier, type_identifier, field_identifier,
// property_identifier). Returns "" if no such child is found. Used to tag
// chunks with the symbol they came from for display and ranking in search
// results.
func (n *Node) Symbol(source []byte) string {
	for _, child := range n.Children {
		if strings.HasSuffix(child.Type, "identifier") {
			return child.GetContent(source)
		}
	}
	return ""
}
