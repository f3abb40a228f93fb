package watch

import (
	"fmt"
	"strings"

	"github.com/mabhi256/paramspec/utils"
)

// applyScrolling cuts content down to the visible window of the active tab.
func (m *Model) applyScrolling(content string, viewportHeight int) string {
	lines := strings.Split(content, "\n")
	totalLines := len(lines)

	if viewportHeight <= 0 || totalLines <= viewportHeight {
		return content
	}

	scrollPos := m.scrollPositions[m.activeTab]
	maxScroll := totalLines - viewportHeight
	scrollPos = min(max(scrollPos, 0), maxScroll)
	m.scrollPositions[m.activeTab] = scrollPos

	endPos := scrollPos + viewportHeight
	visibleLines := lines[scrollPos:endPos]

	if scrollPos > 0 || endPos < totalLines {
		visibleLines[len(visibleLines)-1] = fmt.Sprintf("%s (Line %d-%d of %d) %s",
			utils.MutedStyle.Render("▲"),
			scrollPos+1,
			endPos,
			totalLines,
			utils.MutedStyle.Render("▼"))
	}

	return strings.Join(visibleLines, "\n")
}

func (m *Model) scrollUp(lines int) {
	m.scrollPositions[m.activeTab] = max(m.scrollPositions[m.activeTab]-lines, 0)
}

// scrollDown is clamped on the next render.
func (m *Model) scrollDown(lines int) {
	m.scrollPositions[m.activeTab] += lines
}
