package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	metaStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusStyle   = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("241"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2).BorderForeground(lipgloss.Color("63"))
)

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	if m.adding {
		content := "Add Feed\n\n" + m.input.View()
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, boxStyle.Render(content))
	}

	feedWidth := clamp(m.width/4, 20, 36)
	listWidth := clamp(m.width/3, 24, 50)
	detailWidth := max(m.width-feedWidth-listWidth-2, 20)
	paneHeight := max(m.height-1, 5)

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.renderFeeds(feedWidth, paneHeight),
		m.renderArticles(listWidth, paneHeight),
		m.renderDetail(detailWidth, paneHeight),
	)
	return lipgloss.JoinVertical(lipgloss.Left, body, m.renderStatus())
}

func (m Model) renderFeeds(width, height int) string {
	style := lipgloss.NewStyle().Width(width).Height(height).Padding(0, 1)
	lines := []string{headerStyle.Render("Feeds")}
	if m.view == nil || len(m.view.Feeds) == 0 {
		lines = append(lines, "No feeds. Press 'a' to add one.")
		return style.Render(strings.Join(lines, "\n"))
	}
	start := window(m.view.FeedIndex, len(m.view.Feeds), height-1)
	for i := start; i < len(m.view.Feeds) && len(lines) < height; i++ {
		feed := m.view.Feeds[i]
		line := truncate(fmt.Sprintf("[%s] %s", feed.Category, feed.Name), width-4)
		lines = append(lines, cursorLine(line, i == m.view.FeedIndex))
	}
	return style.Render(strings.Join(lines, "\n"))
}

func (m Model) renderArticles(width, height int) string {
	style := lipgloss.NewStyle().Width(width).Height(height).Padding(0, 1)
	lines := []string{headerStyle.Render("Articles")}
	if m.view == nil || m.view.SelectedFeed() == nil {
		return style.Render(strings.Join(lines, "\n"))
	}
	if len(m.view.Articles) == 0 {
		lines = append(lines, "Nothing yet. Press 'r' to refresh.")
		return style.Render(strings.Join(lines, "\n"))
	}
	start := window(m.view.ArticleIndex, len(m.view.Articles), height-1)
	for i := start; i < len(m.view.Articles) && len(lines) < height; i++ {
		line := truncate(m.view.Articles[i].Title, width-4)
		lines = append(lines, cursorLine(line, i == m.view.ArticleIndex))
	}
	return style.Render(strings.Join(lines, "\n"))
}

func (m Model) renderDetail(width, height int) string {
	style := lipgloss.NewStyle().Width(width).Height(height).Padding(0, 1)
	if m.view == nil {
		return style.Render("")
	}
	a := m.view.SelectedArticle()
	if a == nil {
		return style.Render(metaStyle.Render("Select an article to read it."))
	}
	body := lipgloss.NewStyle().Width(width - 2)
	parts := []string{
		titleStyle.Width(width - 2).Render(a.Title),
		metaStyle.Render(a.PubDate.Local().Format("Mon, 02 Jan 2006 15:04")),
	}
	if a.Link != "" {
		parts = append(parts, metaStyle.Render(a.Link))
	}
	if s := m.plainText(a.Summary); s != "" {
		parts = append(parts, "", body.Render(s))
	}
	return style.Render(strings.Join(parts, "\n"))
}

func (m Model) renderStatus() string {
	status := m.status
	if m.pending > 0 {
		status = m.spinnerFrames[m.spinnerIndex] + " " + status
	} else if status == "" {
		status = "Ready"
	}
	const hint = "? help"
	padding := max(m.width-lipgloss.Width(status)-len(hint)-2, 1)
	return statusStyle.Width(m.width).Render(status + strings.Repeat(" ", padding) + hint)
}

func (m Model) renderHelp() string {
	content := []string{
		"Keys",
		"",
		"tab/l, shift+tab/h  - next / previous feed",
		"j/k or arrows       - next / previous article",
		"a                   - add feed",
		"d                   - remove selected feed",
		"r                   - refresh selected feed",
		"R                   - refresh all feeds",
		"q                   - quit",
		"? or esc            - close",
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, boxStyle.Render(strings.Join(content, "\n")))
}

func cursorLine(line string, selected bool) string {
	if selected {
		return selectedStyle.Render("▸ " + line)
	}
	return "  " + line
}

// window returns the first visible row so that cursor stays on screen.
func window(cursor, n, rows int) int {
	if rows <= 0 || n <= rows || cursor < rows {
		return 0
	}
	return min(cursor-rows+1, n-rows)
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width < 4 || len(r) <= width {
		return s
	}
	return string(r[:width-3]) + "..."
}
