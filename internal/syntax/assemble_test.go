package syntax_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/patto/internal/syntax"
)

const sample = `Project [Roadmap#q3] {@task status=doing due=2025-07-01}
	[** milestone] one #m1
		detail with [` + "`code`" + `]

[@code go]
	func main() {
		println("hi")

	}
[@quote]
	quoted [Other]
		deeper
[@table scores]
	name	score
	[Alice]	10
-----
[@unknown]
tail !2025-04-20
`

func TestParseScenarioTask(t *testing.T) {
	tree := syntax.Parse("Project1\n\ttask 1        {@task status=todo due=2025-12-08}\n")
	require.Len(t, tree.Blocks, 1)
	top := tree.Blocks[0]
	assert.Equal(t, syntax.KindLine, top.Kind)
	assert.Empty(t, top.Properties)

	require.Len(t, top.Children, 1)
	child := top.Children[0]
	assert.Equal(t, syntax.KindLine, child.Kind)
	require.Len(t, child.Properties, 1)
	task := child.Properties[0]
	assert.Equal(t, syntax.PropertyTask, task.Kind)
	assert.Equal(t, syntax.TaskTodo, task.Status)
	assert.Equal(t, syntax.DeadlineDate, task.Due.Kind)
	assert.Equal(t, time.Date(2025, 12, 8, 0, 0, 0, 0, time.UTC), task.Due.Time)
}

func TestParseScenarioNesting(t *testing.T) {
	tree := syntax.Parse("a\n\tb\n\t\tc\nd\n")
	require.Len(t, tree.Blocks, 2)
	a, d := tree.Blocks[0], tree.Blocks[1]
	assert.Equal(t, "a", a.Text())
	assert.Equal(t, "d", d.Text())
	require.Len(t, a.Children, 1)
	b := a.Children[0]
	assert.Equal(t, "\tb", b.Text())
	require.Len(t, b.Children, 1)
	assert.Equal(t, "\t\tc", b.Children[0].Text())
	assert.Empty(t, d.Children)
	assert.Same(t, tree.Root.Children[0], tree.Blocks[0])
}

func TestParseSpanIntegrity(t *testing.T) {
	tree := syntax.Parse(sample)
	tree.Root.Walk(func(n *syntax.Node) bool {
		loc := n.Location
		require.GreaterOrEqual(t, loc.Span.Start, 0)
		require.LessOrEqual(t, loc.Span.Start, loc.Span.End)
		require.LessOrEqual(t, loc.Span.End, len(loc.Input))
		if n.Kind != syntax.KindDummy {
			abs := sample[loc.Offset+loc.Span.Start : loc.Offset+loc.Span.End]
			assert.Equal(t, abs, n.Text(), "node %s at row %d", n.Kind, loc.Row)
		}
		return true
	})
}

func TestParseIndentMonotonicity(t *testing.T) {
	tree := syntax.Parse(sample)
	var check func(parent *syntax.Node)
	check = func(parent *syntax.Node) {
		prevRow := -1
		for _, c := range parent.Children {
			assert.GreaterOrEqual(t, c.Location.Row, prevRow)
			prevRow = c.Location.Row
			if parent.Kind == syntax.KindLine || parent.Kind == syntax.KindDummy {
				assert.Greater(t, c.Depth, parent.Depth, "row %d", c.Location.Row)
			}
			check(c)
		}
		for _, c := range parent.Contents {
			check(c)
		}
	}
	check(tree.Root)
}

func TestParseIdempotent(t *testing.T) {
	first, err := json.Marshal(syntax.Parse(sample).Root)
	require.NoError(t, err)
	second, err := json.Marshal(syntax.Parse(sample).Root)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}

func ids(tree *syntax.Tree) map[string]string {
	out := map[string]string{}
	tree.Root.Walk(func(n *syntax.Node) bool {
		if n.Kind == syntax.KindLine {
			out[n.Text()] = n.StableID
		}
		return true
	})
	return out
}

func TestStableIDsSurviveUnrelatedEdits(t *testing.T) {
	base := ids(syntax.Parse("alpha\n\tchild\nbeta\n\tleaf\n"))

	edited := ids(syntax.Parse("alpha\n\tchild\nbeta\n\tleaf changed\n"))
	assert.Equal(t, base["alpha"], edited["alpha"])
	assert.Equal(t, base["\tchild"], edited["\tchild"])
	assert.Equal(t, base["beta"], edited["beta"])
	assert.NotEqual(t, base["\tleaf"], edited["\tleaf changed"])

	shifted := ids(syntax.Parse("intro\nalpha\n\tchild\nbeta\n\tleaf\n"))
	for _, key := range []string{"alpha", "\tchild", "beta", "\tleaf"} {
		assert.Equal(t, base[key], shifted[key], key)
	}
}

func TestStableIDsDistinguishDuplicates(t *testing.T) {
	tree := syntax.Parse("same\nsame\n")
	require.Len(t, tree.Blocks, 2)
	assert.NotEqual(t, tree.Blocks[0].StableID, tree.Blocks[1].StableID)
	assert.Same(t, tree.Blocks[1], tree.FindByID(tree.Blocks[1].StableID))
}

func TestParseCodeBlockVerbatim(t *testing.T) {
	tree := syntax.Parse("[@code go]\n\tfunc main() {\n\t\treturn [not a link]\n\n\t}\nafter\n")
	require.Len(t, tree.Blocks, 2)
	opener := tree.Blocks[0]
	require.Len(t, opener.Contents, 1)
	code := opener.Contents[0]
	require.Equal(t, syntax.KindCode, code.Kind)
	assert.Equal(t, "go", code.Lang)

	var body []string
	for _, c := range code.Children {
		assert.Equal(t, syntax.KindText, c.Kind)
		body = append(body, c.Text())
	}
	assert.Equal(t, []string{"func main() {", "\treturn [not a link]", "", "}"}, body)
	assert.Empty(t, opener.Children)
	assert.Equal(t, "after", tree.Blocks[1].Text())
}

func TestParseQuoteBlock(t *testing.T) {
	tree := syntax.Parse("[@quote]\n\tfirst [link]\n\t\tnested\nout\n")
	require.Len(t, tree.Blocks, 2)
	quote := tree.Blocks[0].Contents[0]
	require.Equal(t, syntax.KindQuote, quote.Kind)
	require.Len(t, quote.Children, 1)

	first := quote.Children[0]
	assert.Equal(t, syntax.KindQuoteContent, first.Kind)
	require.Len(t, first.Contents, 2)
	assert.Equal(t, syntax.KindWikiLink, first.Contents[1].Kind)
	require.Len(t, first.Children, 1)
	assert.Equal(t, syntax.KindQuoteContent, first.Children[0].Kind)
}

func TestParseTableBlock(t *testing.T) {
	tree := syntax.Parse("[@table scores]\n\tname\tscore\n\t[Alice]\t10\n")
	table := tree.Blocks[0].Contents[0]
	require.Equal(t, syntax.KindTable, table.Kind)
	assert.Equal(t, "scores", table.Caption)
	require.Len(t, table.Children, 2)

	row := table.Children[1]
	require.Len(t, row.Contents, 2)
	cell := row.Contents[0]
	assert.Equal(t, syntax.KindTableColumn, cell.Kind)
	assert.Equal(t, "[Alice]", cell.Text())
	require.Len(t, cell.Contents, 1)
	assert.Equal(t, "Alice", cell.Contents[0].Target)
	assert.Equal(t, "10", row.Contents[1].Text())
}

func TestParseBlankLineBelongsToFollowingBlock(t *testing.T) {
	tree := syntax.Parse("a\n\n\tb\n")
	require.Len(t, tree.Blocks, 1)
	a := tree.Blocks[0]
	require.Len(t, a.Children, 2)
	assert.Empty(t, a.Children[0].Contents)
	assert.Equal(t, "\tb", a.Children[1].Text())
}

func TestParseUnexpectedIndentation(t *testing.T) {
	tree := syntax.Parse("a\n\t\t\tb\n")
	require.Len(t, tree.Blocks, 1)
	require.Len(t, tree.Blocks[0].Children, 1)
	require.Len(t, tree.Diagnostics, 1)
	assert.Equal(t, syntax.SeverityWarning, tree.Diagnostics[0].Severity)
	assert.Equal(t, 1, tree.Diagnostics[0].Row)
}

func TestParseErrorIsLineLocal(t *testing.T) {
	tree := syntax.Parse("ok\n[` broken\nnext [link]\n")
	require.Len(t, tree.Blocks, 3)
	require.Len(t, tree.Diagnostics, 1)
	assert.Equal(t, 1, tree.Diagnostics[0].Row)
	assert.Equal(t, syntax.SeverityError, tree.Diagnostics[0].Severity)
	assert.Equal(t, syntax.KindText, tree.Blocks[1].Contents[0].Kind)
	assert.Equal(t, syntax.KindWikiLink, tree.Blocks[2].Contents[1].Kind)
}

func TestParseSampleShape(t *testing.T) {
	tree := syntax.Parse(sample)
	var kinds []syntax.Kind
	for _, b := range tree.Blocks {
		if len(b.Contents) > 0 {
			kinds = append(kinds, b.Contents[0].Kind)
		}
	}
	assert.Contains(t, kinds, syntax.KindCode)
	assert.Contains(t, kinds, syntax.KindQuote)
	assert.Contains(t, kinds, syntax.KindTable)
	assert.Contains(t, kinds, syntax.KindHorizontalLine)

	require.Len(t, tree.Diagnostics, 1)
	assert.Contains(t, tree.Diagnostics[0].Message, "unknown command")
	assert.Len(t, tree.Snapshots, len(tree.Lines))
}
