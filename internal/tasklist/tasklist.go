// Package tasklist renders workspace tasks for the terminal.
package tasklist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/starford/patto/internal/syntax"
	"github.com/starford/patto/internal/workspace"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	overdueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6188")).Bold(true)
	todayStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD866"))
	dueStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#78DCE8"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Strikethrough(true)

	dueColumn  = lipgloss.NewStyle().Width(17)
	noteColumn = lipgloss.NewStyle().Width(28)
)

// Options filter and label the listing.
type Options struct {
	// Status limits output to one status; empty shows todo and doing.
	Status string
	// Now decides which tasks are overdue.
	Now time.Time
}

// Render writes tasks grouped by status, each group ordered by due date.
// It returns the number of tasks written.
func Render(w io.Writer, tasks []workspace.TaskItem, opts Options) (int, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	groups := []syntax.TaskStatus{syntax.TaskDoing, syntax.TaskTodo}
	if opts.Status != "" {
		groups = []syntax.TaskStatus{syntax.ParseTaskStatus(opts.Status)}
	}

	items := append([]workspace.TaskItem(nil), tasks...)
	workspace.SortTasks(items)

	var (
		b     strings.Builder
		count int
	)
	for _, status := range groups {
		var lines []string
		for _, it := range items {
			if it.Status != status {
				continue
			}
			lines = append(lines, row(it, opts.Now))
		}
		if len(lines) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d)", strings.ToUpper(status.String()), len(lines))))
		b.WriteString("\n")
		for _, l := range lines {
			b.WriteString(l)
			b.WriteString("\n")
		}
		count += len(lines)
	}
	if count == 0 {
		b.WriteString(dimStyle.Render("no tasks"))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return count, err
}

func row(it workspace.TaskItem, now time.Time) string {
	due := dueColumn.Render(dueLabel(it.Due, now))
	note := noteColumn.Render(dimStyle.Render(fmt.Sprintf("%s:%d", it.Name, it.Row+1)))
	text := it.Text
	if it.Status == syntax.TaskDone {
		text = doneStyle.Render(text)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, due, note, text)
}

func dueLabel(d syntax.Deadline, now time.Time) string {
	switch d.Kind {
	case syntax.DeadlineNone:
		return dimStyle.Render("-")
	case syntax.DeadlineUninterpretable:
		return dimStyle.Render(d.Raw)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
	switch {
	case day.Before(today):
		return overdueStyle.Render(d.String())
	case day.Equal(today):
		return todayStyle.Render(d.String())
	default:
		return dueStyle.Render(d.String())
	}
}
