package utils

import (
	"fmt"
	"strings"
)

// ReportBuilder assembles plain text reports line by line
type ReportBuilder struct {
	lines     []string
	separator string
	width     int
}

func NewReportBuilder() *ReportBuilder {
	return &ReportBuilder{separator: "=", width: 40}
}

func (rb *ReportBuilder) WithWidth(width int) *ReportBuilder {
	rb.width = width
	return rb
}

// Header adds a title underlined with the separator
func (rb *ReportBuilder) Header(text string) *ReportBuilder {
	rb.lines = append(rb.lines, text, strings.Repeat(rb.separator, rb.width))
	return rb
}

func (rb *ReportBuilder) Section(title string) *ReportBuilder {
	rb.lines = append(rb.lines, "", title)
	return rb
}

func (rb *ReportBuilder) AddLine(text string) *ReportBuilder {
	rb.lines = append(rb.lines, text)
	return rb
}

func (rb *ReportBuilder) AddNumbered(number int, text string) *ReportBuilder {
	rb.lines = append(rb.lines, fmt.Sprintf("%d. %s", number, text))
	return rb
}

func (rb *ReportBuilder) AddKeyValue(key string, value interface{}) *ReportBuilder {
	rb.lines = append(rb.lines, fmt.Sprintf("%s: %v", key, value))
	return rb
}

func (rb *ReportBuilder) AddIndented(text string, level int) *ReportBuilder {
	rb.lines = append(rb.lines, strings.Repeat("  ", level)+text)
	return rb
}

func (rb *ReportBuilder) Build() string {
	return strings.Join(rb.lines, "\n")
}
