package chunk

import (
	"context"
	"strings"
)

// Chunker splits one file's text into chunks, syntax-aware where the
// extension maps to a supported language, falling back to a character
// window with overlap otherwise.
type Chunker struct {
	parser   *Parser
	registry *LanguageRegistry
	opts     Options
}

// New creates a Chunker using the default language registry.
func New(opts Options) *Chunker {
	return &Chunker{
		parser:   NewParser(),
		registry: DefaultRegistry(),
		opts:     opts,
	}
}

// Close releases parser resources.
func (c *Chunker) Close() {
	c.parser.Close()
}

// Chunk splits content (the raw bytes of relativePath) into an ordered
// sequence of chunks. Syntax-aware chunks do not overlap in line space;
// adjacent window-fallback chunks overlap by about OverlapChars, rounded
// to whole lines. Empty and whitespace-only files produce zero chunks, as
// do comment-only files in a language with a tree-sitter grammar; a
// comment-only file in any other language goes through the window
// fallback like any other text.
func (c *Chunker) Chunk(ctx context.Context, relativePath string, content []byte, extension string) ([]Chunk, error) {
	if len(strings.TrimSpace(string(content))) == 0 {
		return nil, nil
	}

	lang, ok := c.registry.GetByExtension(extension)
	if ok {
		if _, hasTS := c.registry.GetTreeSitterLanguage(lang.Name); hasTS {
			tree, err := c.parser.Parse(ctx, content, lang.Name)
			if err == nil && tree != nil && !tree.Root.HasError {
				onlyComments := len(tree.Root.Children) > 0
				for _, child := range tree.Root.Children {
					if !strings.Contains(child.Type, "comment") {
						onlyComments = false
						break
					}
				}
				if onlyComments {
					return nil, nil
				}
				chunks := c.chunkSyntaxAware(tree, lang, relativePath, extension, content)
				if len(chunks) > 0 {
					return chunks, nil
				}
			}
		}
	}

	return c.chunkWindow(relativePath, extension, content), nil
}

// declarationNode pairs an AST node with the line range it covers.
type declarationNode struct {
	node      *Node
	startLine int
	endLine   int
}

// chunkSyntaxAware emits one chunk per top-level declaration, subdividing
// any declaration larger than MaxChunkChars at line boundaries, and
// adjusts tie-break line ranges so consecutive declarations never overlap
// in line space.
func (c *Chunker) chunkSyntaxAware(tree *Tree, lang *LanguageConfig, relativePath, extension string, source []byte) []Chunk {
	declTypes := make(map[string]struct{})
	for _, t := range [][]string{lang.FunctionTypes, lang.ClassTypes, lang.InterfaceTypes, lang.MethodTypes, lang.TypeDefTypes, lang.ConstantTypes, lang.VariableTypes} {
		for _, name := range t {
			declTypes[name] = struct{}{}
		}
	}

	var decls []declarationNode
	for _, child := range tree.Root.Children {
		collectDeclarations(child, declTypes, &decls)
	}
	if len(decls) == 0 {
		return nil
	}

	// Tie-break: when a declaration begins on the same line as the
	// previous one ends, pull the previous chunk's endLine back so ranges
	// are non-overlapping in line space.
	for i := 1; i < len(decls); i++ {
		if decls[i].startLine <= decls[i-1].endLine {
			decls[i-1].endLine = decls[i].startLine - 1
			if decls[i-1].endLine < decls[i-1].startLine {
				decls[i-1].endLine = decls[i-1].startLine
			}
		}
	}

	lines := splitLines(source)
	var chunks []Chunk
	for _, d := range decls {
		content := joinLines(lines, d.startLine, d.endLine)
		if len(strings.TrimSpace(content)) == 0 {
			continue
		}
		symbol := d.node.Symbol(source)
		if len(content) <= c.opts.MaxChunkChars {
			chunks = append(chunks, Chunk{
				Content:       content,
				RelativePath:  relativePath,
				StartLine:     d.startLine,
				EndLine:       d.endLine,
				FileExtension: extension,
				Metadata:      symbolMetadata(symbol),
			})
			continue
		}
		for _, sub := range c.subdivideByStatement(d, lines, relativePath, extension) {
			sub.Metadata = symbolMetadata(symbol)
			chunks = append(chunks, sub)
		}
	}
	return chunks
}

// symbolMetadata returns the chunk metadata map tagging a declaration's
// symbol name, or nil when no name could be extracted, so empty maps never
// get serialized onto chunks that don't have one.
func symbolMetadata(symbol string) map[string]string {
	if symbol == "" {
		return nil
	}
	return map[string]string{"symbol": symbol}
}

// subdivideByStatement splits an oversized declaration into
// MaxChunkChars-bounded pieces by packing whole lines. It does not look
// at the declaration's statement nodes, so a piece can end in the middle
// of a multi-line statement. A single line longer than MaxChunkChars
// becomes a piece of its own.
func (c *Chunker) subdivideByStatement(d declarationNode, lines []string, relativePath, extension string) []Chunk {
	var chunks []Chunk
	start := d.startLine
	cur := strings.Builder{}
	curStart := start

	flush := func(endLine int) {
		content := strings.TrimRight(cur.String(), "\n")
		if len(strings.TrimSpace(content)) > 0 {
			chunks = append(chunks, Chunk{
				Content:       content,
				RelativePath:  relativePath,
				StartLine:     curStart,
				EndLine:       endLine,
				FileExtension: extension,
			})
		}
		cur.Reset()
	}

	for ln := start; ln <= d.endLine; ln++ {
		line := lineAt(lines, ln)
		if cur.Len()+len(line)+1 > c.opts.MaxChunkChars && cur.Len() > 0 {
			flush(ln - 1)
			curStart = ln
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
	}
	flush(d.endLine)
	return chunks
}

func collectDeclarations(n *Node, declTypes map[string]struct{}, out *[]declarationNode) {
	if _, ok := declTypes[n.Type]; ok {
		*out = append(*out, declarationNode{
			node:      n,
			startLine: int(n.StartPoint.Row) + 1,
			endLine:   int(n.EndPoint.Row) + 1,
		})
		return
	}
	for _, child := range n.Children {
		collectDeclarations(child, declTypes, out)
	}
}

// chunkWindow is the character-window fallback: a sliding window of
// WindowChars with OverlapChars overlap, aligned to the nearest newline.
func (c *Chunker) chunkWindow(relativePath, extension string, content []byte) []Chunk {
	lines := splitLines(content)
	if len(lines) == 0 {
		return nil
	}

	windowChars := c.opts.WindowChars
	overlapChars := c.opts.OverlapChars
	if windowChars <= 0 {
		windowChars = DefaultWindowChars
	}

	var chunks []Chunk
	startLine := 1
	for startLine <= len(lines) {
		endLine := startLine
		size := 0
		for endLine <= len(lines) {
			lineLen := len(lines[endLine-1]) + 1
			if size+lineLen > windowChars && endLine > startLine {
				break
			}
			size += lineLen
			endLine++
		}
		endLine--
		if endLine < startLine {
			endLine = startLine
		}

		text := joinLines(lines, startLine, endLine)
		if len(strings.TrimSpace(text)) > 0 {
			chunks = append(chunks, Chunk{
				Content:       text,
				RelativePath:  relativePath,
				StartLine:     startLine,
				EndLine:       endLine,
				FileExtension: extension,
			})
		}

		if endLine >= len(lines) {
			break
		}

		// Back up by overlapChars worth of lines, aligned to newline.
		overlapLines := 0
		backSize := 0
		for l := endLine; l > startLine && backSize < overlapChars; l-- {
			backSize += len(lines[l-1]) + 1
			overlapLines++
		}
		nextStart := endLine - overlapLines + 1
		if nextStart <= startLine {
			nextStart = endLine + 1
		}
		startLine = nextStart
	}

	return chunks
}

func splitLines(content []byte) []string {
	text := strings.ReplaceAll(string(content), "\r\n", "\n")
	return strings.Split(text, "\n")
}

func lineAt(lines []string, n int) string {
	if n < 1 || n > len(lines) {
		return ""
	}
	return lines[n-1]
}

func joinLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
