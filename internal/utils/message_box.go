package utils

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// BoxKind selects the colour and icon of a message box
type BoxKind int

const (
	InfoBox BoxKind = iota
	SuccessBox
	WarningBox
	ErrorBox
)

const (
	topLeft     = "╭"
	topRight    = "╮"
	bottomLeft  = "╰"
	bottomRight = "╯"
	horizontal  = "─"
	vertical    = "│"
)

var boxStyles = map[BoxKind]struct {
	style  lipgloss.Style
	prefix string
}{
	InfoBox:    {lipgloss.NewStyle().Foreground(lipgloss.Color("86")), "ℹ"},
	SuccessBox: {lipgloss.NewStyle().Foreground(lipgloss.Color("42")), "✓"},
	WarningBox: {lipgloss.NewStyle().Foreground(lipgloss.Color("178")), "⚠"},
	ErrorBox:   {lipgloss.NewStyle().Foreground(lipgloss.Color("196")), "✗"},
}

// Box is a framed message shown at the end of a command, e.g. the run
// summary
type Box struct {
	kind  BoxKind
	title string
	lines []string
	width int
}

func NewBox(kind BoxKind, title string) *Box {
	return &Box{
		kind:  kind,
		title: title,
		width: terminalWidth() - 8,
	}
}

// WithWidth overrides the terminal derived width
func (b *Box) WithWidth(width int) *Box {
	b.width = width
	return b
}

func (b *Box) AddLine(text string) *Box {
	b.lines = append(b.lines, text)
	return b
}

func (b *Box) AddKeyValue(key string, value interface{}) *Box {
	b.lines = append(b.lines, fmt.Sprintf("%s: %v", key, value))
	return b
}

func (b *Box) AddBullet(text string) *Box {
	b.lines = append(b.lines, "• "+text)
	return b
}

func (b *Box) Render() string {
	s, ok := boxStyles[b.kind]
	if !ok {
		s = boxStyles[InfoBox]
	}

	contentWidth := b.width - 6
	if contentWidth < 20 {
		contentWidth = 20
	}

	var lines []string
	for _, line := range append([]string{b.title}, b.lines...) {
		lines = append(lines, wrapText(line, contentWidth)...)
	}

	inner := 0
	for _, line := range lines {
		if w := utf8.RuneCountInString(line); w > inner {
			inner = w
		}
	}
	inner += 4

	var sb strings.Builder
	sb.WriteString(s.style.Render(topLeft+strings.Repeat(horizontal, inner)+topRight) + "\n")
	for i, line := range lines {
		lead := "  "
		if i == 0 {
			lead = s.style.Bold(true).Render(s.prefix) + " "
		}
		pad := strings.Repeat(" ", inner-utf8.RuneCountInString(line)-3)
		sb.WriteString(fmt.Sprintf("%s %s%s%s%s\n", s.style.Render(vertical), lead, line, pad, s.style.Render(vertical)))
	}
	sb.WriteString(s.style.Render(bottomLeft + strings.Repeat(horizontal, inner) + bottomRight))
	return sb.String()
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// wrapText breaks text on spaces so no line exceeds maxWidth runes. Words
// longer than maxWidth are kept whole.
func wrapText(text string, maxWidth int) []string {
	if utf8.RuneCountInString(text) <= maxWidth {
		return []string{text}
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if utf8.RuneCountInString(current)+1+utf8.RuneCountInString(word) <= maxWidth {
			current += " " + word
			continue
		}
		lines = append(lines, current)
		current = word
	}
	return append(lines, current)
}
