// Package report renders a specialization run for humans.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/mabhi256/paramspec/internal/profile"
	"github.com/mabhi256/paramspec/internal/sampler"
	"github.com/mabhi256/paramspec/internal/simulation"
	"github.com/mabhi256/paramspec/utils"
)

// Formats accepted by Print.
var Formats = []string{"cli", "detail"}

// TopCandidates is how many entries per parameter the summary shows.
const TopCandidates = 3

func Print(w io.Writer, snap simulation.Snapshot, format string) error {
	p := &printer{w: w}
	switch format {
	case "cli":
		p.summary(snap)
	case "detail":
		p.summary(snap)
		p.detail(snap)
	default:
		return fmt.Errorf("unknown output format %q, valid options: %v", format, Formats)
	}
	return p.err
}

// printer keeps the first write error so sections can print freely.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) section(title string) {
	p.printf("\n%s\n%s\n", title, strings.Repeat("─", 35))
}

func (p *printer) summary(snap simulation.Snapshot) {
	p.printf("🔍 Parameter Specialization Report\n")
	p.printf("Run: %s  |  Batches: %d  |  Duration: %s\n",
		snap.RunID, snap.Batches, utils.FormatDuration(snap.Elapsed))
	p.printf("%s\n", utils.MutedStyle.Render(snap.Config))
	p.printf("%s\n", utils.MutedStyle.Render(fmt.Sprintf("runtime: %d types, %d methods, %d compiled bodies",
		snap.Runtime.Types, snap.Runtime.Methods, snap.Runtime.CompiledMethods)))
	p.printf("%s\n", strings.Repeat("═", 65))

	p.sampling(snap.Counters, snap.Passes, snap.IntegrityFailures)
	p.profiles(snap.Methods)
	p.specializations(snap)
}

func (p *printer) sampling(c sampler.Counters, passes, broken int64) {
	p.section("📈 SAMPLING")
	potential := c.TotalPotentialSamples()
	ratio := 0.0
	if potential > 0 {
		ratio = float64(c.Taken) / float64(potential)
	}
	p.printf("Samples taken:    %d of %d potential %s %s\n",
		c.Taken, potential, utils.CreateProgressBar(ratio, 20, utils.InfoColor),
		utils.RatioStyle(ratio).Render(fmt.Sprintf("%.1f%%", ratio*100)))
	p.printf("Windows:          %d (%d organizer passes)\n", c.Windows, passes)
	if broken > 0 {
		p.printf("%s\n", utils.CriticalStyle.Render(fmt.Sprintf("🔴 %d windows failed the integrity check", broken)))
	}

	total := c.TotalSkipped()
	p.printf("Skipped:          %d\n", total)
	for _, cause := range sampler.SkipCauses() {
		n := c.Skipped[cause]
		if n == 0 {
			continue
		}
		share := float64(n) / float64(total)
		p.printf("   %-18s %8d %s\n", cause, n, utils.CreateProgressBar(share, 20, utils.MutedColor))
	}
}

func (p *printer) profiles(methods []simulation.MethodData) {
	p.section("🧬 PROFILES")
	if len(methods) == 0 {
		p.printf("%s\n", utils.MutedStyle.Render("No profiles collected"))
		return
	}
	for _, md := range methods {
		if md.Profile == nil {
			n := 0
			for _, s := range md.Samples {
				n += s.Multiplicity()
			}
			p.printf("%s  %d samples in %d distinct profiles\n", md.Method, n, len(md.Samples))
			continue
		}
		p.printf("%s  %d samples\n", md.Method, md.Profile.Samples())
		for pos := range md.Profile.ParameterCount() {
			p.printf("   %s %s\n", positionLabel(md, pos), topEntries(md.Profile.DataForParameter(pos)))
		}
	}
}

func positionLabel(md simulation.MethodData, pos int) string {
	if !md.Method.Static {
		if pos == 0 {
			return "this:"
		}
		pos--
	}
	return fmt.Sprintf("#%d:  ", pos)
}

func topEntries(entries []profile.Entry) string {
	parts := make([]string, 0, TopCandidates+1)
	for i, e := range entries {
		if i == TopCandidates {
			parts = append(parts, utils.MutedStyle.Render(fmt.Sprintf("+%d more", len(entries)-i)))
			break
		}
		parts = append(parts, fmt.Sprintf("%s ×%d", e.Value.Label(), e.Count))
	}
	return strings.Join(parts, ", ")
}

func (p *printer) specializations(snap simulation.Snapshot) {
	p.section("🎯 SPECIALIZATION")
	yes := 0
	for _, d := range snap.Decisions {
		if d.Yes {
			yes++
		}
	}
	p.printf("Decisions:        %d (%d yes, %d no)\n", len(snap.Decisions), yes, len(snap.Decisions)-yes)
	p.printf("Variants:         %d compiled, %d pending\n", snap.Specialized(), snap.Pending)
	for _, v := range snap.Variants {
		status := utils.GoodStyle.Render("compiled")
		if v.Body == nil {
			status = utils.WarningStyle.Render("pending")
		}
		index, value, _ := v.Context.Fixed()
		p.printf("   #%-3d %s  #%d = %s  %s\n", v.Index, v.Source, index, value.Label(), status)
	}
}

func (p *printer) detail(snap simulation.Snapshot) {
	p.section("⚙️  SAMPLER COUNTERS")
	for _, l := range snap.Counters.Lines() {
		p.printf("%-30s %10d  %s\n", l.Name, l.Value, utils.MutedStyle.Render(l.Description))
	}

	p.section("📋 DECISIONS")
	for _, d := range snap.Decisions {
		verdict := utils.MutedStyle.Render("NO  " + d.Reason())
		if d.Yes {
			verdict = utils.GoodStyle.Render("YES " + d.Context.String())
		}
		p.printf("%s\n   %s\n", d.Method, verdict)
	}

	p.section("🔄 RECOMPILATIONS")
	for _, line := range snap.Recompilations {
		p.printf("%s\n", line)
	}
}
