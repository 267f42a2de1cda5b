// Package tui renders a widget snapshot for a terminal: the design tree with every
// stimulus shaded by how often it was shown, and a markdown frequency summary.
package tui

import (
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/aretw0/revisit"
	"github.com/aretw0/revisit/pkg/domain"
	"github.com/aretw0/revisit/pkg/frequency"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const (
	defaultWidth = 80
	barWidth     = 20
	// NoDataMarker labels a stimulus with no recorded showings.
	NoDataMarker = "no data"
)

// Shading endpoints: weight 0 renders as faint, weight 1 as the full accent.
var (
	faintRGB  = [3]float64{0x3f, 0x3f, 0x46}
	accentRGB = [3]float64{0x81, 0x8c, 0xf8}
)

// Presenter renders snapshots to one output.
type Presenter struct {
	out      io.Writer
	profile  termenv.Profile
	width    int
	tty      bool
	markdown func(string) (string, error)
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithProfile forces a color profile.
func WithProfile(p termenv.Profile) Option {
	return func(pr *Presenter) { pr.profile = p }
}

// WithWidth forces the wrap width.
func WithWidth(w int) Option {
	return func(pr *Presenter) { pr.width = w }
}

// New detects whether out is a terminal. Non-terminals get plain ASCII output.
func New(out io.Writer, opts ...Option) (*Presenter, error) {
	p := &Presenter{out: out, profile: termenv.Ascii, width: defaultWidth}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.tty = true
		p.profile = termenv.NewOutput(f).EnvColorProfile()
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			p.width = w
		}
	}
	for _, opt := range opts {
		opt(p)
	}

	md, err := NewRenderer(p.width, p.tty)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	p.markdown = md
	return p, nil
}

// Banner prints the banner.
func (p *Presenter) Banner() {
	PrintBanner(p.out, p.profile)
}

// Present writes the design tree followed by the summary.
func (p *Presenter) Present(snap revisit.Snapshot) error {
	if _, err := io.WriteString(p.out, p.Tree(snap)); err != nil {
		return err
	}
	summary, err := p.Summary(snap)
	if err != nil {
		return err
	}
	_, err = io.WriteString(p.out, summary)
	return err
}

// Tree renders the design with one line per stimulus. The bar length and color
// intensity follow Aggregate.Weight; stimuli without data get NoDataMarker.
func (p *Presenter) Tree(snap revisit.Snapshot) string {
	var b strings.Builder
	if !snap.HasDesign {
		b.WriteString("(no design configured)\n")
		return b.String()
	}
	excluded := frequency.ExclusionSet(frequency.ExtractInterruptions(snap.Design))
	p.writeNode(&b, snap.Design, snap.Aggregate, excluded, 0)
	return b.String()
}

func (p *Presenter) writeNode(b *strings.Builder, n domain.Node, agg domain.Aggregate, excluded map[string]struct{}, depth int) {
	indent := strings.Repeat("  ", depth)
	if n.IsLeaf() {
		label := n.ID
		if _, ok := excluded[label]; ok {
			label += " (interruption)"
		}
		weight, ok := agg.Weight(n.ID)
		if !ok {
			fmt.Fprintf(b, "%s%-24s %s\n", indent, label, p.profile.String("· "+NoDataMarker).Faint().Italic())
			return
		}
		fill := int(math.Round(weight * barWidth))
		bar := strings.Repeat("█", fill) + strings.Repeat("░", barWidth-fill)
		styled := p.profile.String(bar).Foreground(p.profile.Color(shade(weight)))
		fmt.Fprintf(b, "%s%-24s %s %d\n", indent, label, styled, agg.Table[n.ID])
		return
	}

	name := n.ID
	if name == "" {
		name = "sequence"
	}
	fmt.Fprintf(b, "%s%s\n", indent, p.profile.String(name+"/").Bold())
	for _, c := range n.Components {
		p.writeNode(b, c, agg, excluded, depth+1)
	}
}

// Summary renders the frequency table as markdown.
func (p *Presenter) Summary(snap revisit.Snapshot) (string, error) {
	return p.markdown(SummaryMarkdown(snap))
}

// SummaryMarkdown returns the unrendered summary: counts sorted by descending
// frequency, then id.
func SummaryMarkdown(snap revisit.Snapshot) string {
	var b strings.Builder
	b.WriteString("## Stimulus frequencies\n\n")
	fmt.Fprintf(&b, "Participants: **%d** · Sum: **%d** · Max: **%s**\n\n", snap.Participants, snap.Aggregate.Sum, snap.Aggregate.Max)
	if snap.Err != nil {
		fmt.Fprintf(&b, "> Last update rejected: %v\n\n", snap.Err)
	}
	if !snap.Aggregate.HasData() {
		b.WriteString("_" + NoDataMarker + "_\n")
		return b.String()
	}

	ids := make([]string, 0, len(snap.Aggregate.Table))
	for id := range snap.Aggregate.Table {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		ci, cj := snap.Aggregate.Table[ids[i]], snap.Aggregate.Table[ids[j]]
		if ci != cj {
			return ci > cj
		}
		return ids[i] < ids[j]
	})

	b.WriteString("| Stimulus | Count | Weight |\n|---|---:|---:|\n")
	for _, id := range ids {
		w, _ := snap.Aggregate.Weight(id)
		fmt.Fprintf(&b, "| %s | %d | %.2f |\n", id, snap.Aggregate.Table[id], w)
	}
	return b.String()
}

// shade interpolates from the faint color to the accent by weight in [0,1].
func shade(weight float64) string {
	weight = math.Max(0, math.Min(1, weight))
	var c [3]int
	for i := range c {
		c[i] = int(math.Round(faintRGB[i] + (accentRGB[i]-faintRGB[i])*weight))
	}
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}
