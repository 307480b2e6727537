package mcpserver

// NoteFormat describes the note markup so LLM consumers can write notes
// the parser understands.
const NoteFormat = `# Note Format

Notes are plain UTF-8 text files ending in ` + "`.pn`" + `. Structure comes from
indentation: every line is a block, and a line indented by one more TAB than
the line above it becomes that line's child. Spaces never indent.

## Lines

` + "```" + `
Project plan #plan
	Milestones
		ship beta !2025-04-20
		write docs {@task status=doing due=2025-05-01}
	See [meetings/kickoff] and [research#sources]
` + "```" + `

## Links

- ` + "`[name]`" + ` links to the note whose path (relative to the workspace root,
  without ` + "`.pn`" + `) is ` + "`name`" + `. Example: ` + "`[daily/2025-01-01]`" + `.
- ` + "`[name#anchor]`" + ` links to an anchor inside that note.
- ` + "`[#anchor]`" + ` links to an anchor in the same note.
- ` + "`[https://example.com]`" + ` and ` + "`[title https://example.com]`" + ` are URL links.
- Names are case-sensitive. A name that matches no note is kept as an unresolved link.

## Anchors and tasks

Trailing properties go at the end of a line, after its content:

- ` + "`#name`" + ` declares an anchor other notes can link to.
- ` + "`!DATE`" + `, ` + "`*DATE`" + `, ` + "`-DATE`" + ` mark the line as a task that is todo, doing or done.
- ` + "`{@task status=todo|doing|done due=DATE}`" + ` is the long form.
- DATE is ` + "`YYYY-MM-DD`" + ` or ` + "`YYYY-MM-DDTHH:MM`" + `.

## Decorations and inline code

- ` + "`[* bold]`" + `, ` + "`[/ italic]`" + `, ` + "`[_ underline]`" + `, ` + "`[- deleted]`" + `; prefixes combine: ` + "`[*/ both]`" + `.
- ` + "``[` code `]``" + ` and ` + "`[$ math $]`" + ` are inline and not parsed further.
- ` + "`-----`" + ` (five or more dashes) is a horizontal rule.

## Blocks

A command opener captures every following line indented deeper than it as
verbatim body text:

` + "```" + `
[@code go]
	fmt.Println("hi")
[@quote]
	quoted text with [links]
[@table caption]
	name	value
	a	1
` + "```" + `

Table rows split their cells on TAB. ` + "`[@math]`" + ` works like ` + "`[@code]`" + `.

## Rules

1. Indent with TAB characters only.
2. File paths use forward slashes and end with ` + "`.pn`" + `.
3. A line the parser cannot read is kept as plain text and reported as a
   diagnostic; it never breaks the rest of the note.
`
