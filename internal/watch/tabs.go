package watch

import (
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/lipgloss"

	"github.com/mabhi256/paramspec/internal/profile"
	"github.com/mabhi256/paramspec/internal/sampler"
	"github.com/mabhi256/paramspec/internal/simulation"
	"github.com/mabhi256/paramspec/utils"
)

type TabType int

const (
	TabSampler TabType = iota
	TabProfiles
	TabSpecializations
)

func (t TabType) String() string {
	switch t {
	case TabSampler:
		return "📈 Sampler"
	case TabProfiles:
		return "🧬 Profiles"
	case TabSpecializations:
		return "🎯 Specializations"
	default:
		return "Unknown"
	}
}

func GetAllTabs() []TabType {
	return []TabType{TabSampler, TabProfiles, TabSpecializations}
}

const (
	chartHeight    = 12
	sparkHeight    = 4
	minChartWidth  = 30
	topCandidates  = 4
	recentDecision = 10
)

func renderSamplerTab(snap simulation.Snapshot, taken []float64, width int) string {
	c := snap.Counters
	var sb strings.Builder

	potential := c.TotalPotentialSamples()
	ratio := 0.0
	if potential > 0 {
		ratio = float64(c.Taken) / float64(potential)
	}
	fmt.Fprintf(&sb, "Samples taken: %d of %d potential %s %s\n",
		c.Taken, potential, utils.CreateProgressBar(ratio, 20, utils.InfoColor),
		utils.RatioStyle(ratio).Render(fmt.Sprintf("%.1f%%", ratio*100)))
	fmt.Fprintf(&sb, "Windows: %d  Organizer passes: %d\n", c.Windows, snap.Passes)
	if snap.IntegrityFailures > 0 {
		sb.WriteString(utils.CriticalStyle.Render(fmt.Sprintf("🔴 %d windows failed the integrity check", snap.IntegrityFailures)))
		sb.WriteString("\n")
	}

	w := chartWidth(width)
	sb.WriteString("\n")
	sb.WriteString(utils.TitleStyle.Render("Skipped yieldpoints by cause"))
	sb.WriteString("\n")
	sb.WriteString(skipChart(c, w))
	sb.WriteString("\n")

	if len(taken) > 0 {
		sb.WriteString("\n")
		sb.WriteString(utils.TitleStyle.Render("Samples per batch"))
		sb.WriteString("\n")
		sl := sparkline.New(w, sparkHeight)
		sl.PushAll(taken)
		sl.Draw()
		sb.WriteString(sl.View())
		sb.WriteString("\n")
	}
	return sb.String()
}

// chartWidth is also the number of batches the sparkline keeps.
func chartWidth(width int) int {
	return max(minChartWidth, width-4)
}

func skipChart(c sampler.Counters, width int) string {
	var data []barchart.BarData
	style := lipgloss.NewStyle().Foreground(utils.InfoColor)
	for _, cause := range sampler.SkipCauses() {
		n := c.Skipped[cause]
		if n == 0 {
			continue
		}
		data = append(data, barchart.BarData{
			Label:  fmt.Sprintf("%s %d", cause, n),
			Values: []barchart.BarValue{{Name: cause.String(), Value: float64(n), Style: style}},
		})
	}
	if len(data) == 0 {
		return utils.MutedStyle.Render("Nothing skipped yet")
	}
	bc := barchart.New(width, chartHeight, barchart.WithHorizontalBars())
	bc.PushAll(data)
	bc.Draw()
	return bc.View()
}

func renderProfilesTab(snap simulation.Snapshot) string {
	if len(snap.Methods) == 0 {
		return utils.MutedStyle.Render("No profiles collected yet")
	}
	var sb strings.Builder
	for _, md := range snap.Methods {
		if md.Profile == nil {
			n := 0
			for _, s := range md.Samples {
				n += s.Multiplicity()
			}
			fmt.Fprintf(&sb, "%s  %s\n", utils.InfoStyle.Render(md.Method.String()),
				utils.MutedStyle.Render(fmt.Sprintf("%d samples in %d distinct profiles", n, len(md.Samples))))
			continue
		}
		fmt.Fprintf(&sb, "%s  %s\n", utils.InfoStyle.Render(md.Method.String()),
			utils.MutedStyle.Render(fmt.Sprintf("%d samples", md.Profile.Samples())))
		for pos := range md.Profile.ParameterCount() {
			label := fmt.Sprintf("#%d", pos)
			if !md.Method.Static {
				label = "this"
				if pos > 0 {
					label = fmt.Sprintf("#%d", pos-1)
				}
			}
			fmt.Fprintf(&sb, "   %-5s %s\n", label, formatEntries(md.Profile.DataForParameter(pos)))
		}
	}
	return sb.String()
}

func formatEntries(entries []profile.Entry) string {
	parts := make([]string, 0, topCandidates+1)
	for i, e := range entries {
		if i == topCandidates {
			parts = append(parts, utils.MutedStyle.Render(fmt.Sprintf("+%d more", len(entries)-i)))
			break
		}
		parts = append(parts, fmt.Sprintf("%s ×%d", e.Value.Label(), e.Count))
	}
	return strings.Join(parts, ", ")
}

func renderSpecializationsTab(snap simulation.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Variants: %s compiled, %s pending\n\n",
		utils.GoodStyle.Render(fmt.Sprint(snap.Specialized())),
		utils.WarningStyle.Render(fmt.Sprint(snap.Pending)))

	for _, v := range snap.Variants {
		status := utils.GoodStyle.Render("●")
		if v.Body == nil {
			status = utils.WarningStyle.Render("○")
		}
		index, value, _ := v.Context.Fixed()
		fmt.Fprintf(&sb, "%s #%-3d %s  #%d = %s\n", status, v.Index, v.Source, index, value.Label())
	}

	sb.WriteString("\n")
	sb.WriteString(utils.TitleStyle.Render("Recent decisions"))
	sb.WriteString("\n")
	if len(snap.Decisions) == 0 {
		sb.WriteString(utils.MutedStyle.Render("No method was opt-compiled yet"))
		return sb.String()
	}
	start := max(0, len(snap.Decisions)-recentDecision)
	for _, d := range snap.Decisions[start:] {
		verdict := utils.MutedStyle.Render("NO  " + d.Reason())
		if d.Yes {
			verdict = utils.GoodStyle.Render("YES")
		}
		fmt.Fprintf(&sb, "%s  %s\n", verdict, d.Method)
	}
	return sb.String()
}
