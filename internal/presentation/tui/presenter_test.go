package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/revisit"
	"github.com/aretw0/revisit/pkg/domain"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenario() revisit.Snapshot {
	design := domain.Composite(
		domain.Leaf("A"),
		domain.Leaf("B"),
		domain.Composite(domain.Leaf("C"), domain.Leaf("D")).
			WithInterruptions(domain.InterruptionSpec{Components: []string{"C"}}),
	)
	return revisit.Snapshot{
		Design:       design,
		HasDesign:    true,
		Participants: 2,
		Aggregate: domain.Aggregate{
			Table: domain.FrequencyTable{"A": 3, "B": 1, "D": 1},
			Sum:   5,
			Max:   domain.Max{Value: 3, Valid: true},
		},
	}
}

func TestTree_ShadesByWeight(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(&buf)
	require.NoError(t, err)

	tree := p.Tree(scenario())
	lines := strings.Split(strings.TrimRight(tree, "\n"), "\n")
	require.Len(t, lines, 6)

	assert.Equal(t, "sequence/", lines[0])
	assert.Contains(t, lines[1], strings.Repeat("█", barWidth)+" 3")
	assert.Contains(t, lines[2], strings.Repeat("█", 7)+strings.Repeat("░", 13)+" 1")
	assert.Equal(t, "  sequence/", lines[3])
	assert.Contains(t, lines[4], "C (interruption)")
	assert.Contains(t, lines[4], NoDataMarker)
	assert.NotContains(t, tree, "\x1b[", "plain output off a terminal")
}

func TestTree_NoDesign(t *testing.T) {
	p, err := New(&bytes.Buffer{})
	require.NoError(t, err)
	assert.Contains(t, p.Tree(revisit.Snapshot{}), "no design")
}

func TestTree_ColorProfile(t *testing.T) {
	p, err := New(&bytes.Buffer{}, WithProfile(termenv.TrueColor))
	require.NoError(t, err)
	assert.Contains(t, p.Tree(scenario()), "\x1b[")
}

func TestShade(t *testing.T) {
	assert.Equal(t, "#3f3f46", shade(0))
	assert.Equal(t, "#818cf8", shade(1))
	assert.Equal(t, "#818cf8", shade(2))
	assert.Equal(t, "#60669f", shade(0.5))
}

func TestSummaryMarkdown(t *testing.T) {
	md := SummaryMarkdown(scenario())
	assert.Contains(t, md, "Max: **3**")
	a := strings.Index(md, "| A | 3 | 1.00 |")
	b := strings.Index(md, "| B | 1 | 0.33 |")
	d := strings.Index(md, "| D | 1 | 0.33 |")
	require.True(t, a >= 0 && b >= 0 && d >= 0, md)
	assert.True(t, a < b && b < d, "sorted by count then id")

	empty := SummaryMarkdown(revisit.Snapshot{Aggregate: domain.EmptyAggregate()})
	assert.Contains(t, empty, "Max: **no data**")
	assert.Contains(t, empty, "_"+NoDataMarker+"_")

	failed := scenario()
	failed.Err = errors.New("boom")
	assert.Contains(t, SummaryMarkdown(failed), "Last update rejected: boom")
}

func TestPresent(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(&buf, WithWidth(100))
	require.NoError(t, err)
	require.NoError(t, p.Present(scenario()))

	out := buf.String()
	assert.Contains(t, out, "sequence/")
	assert.Contains(t, out, "Stimulus frequencies")
}

func TestBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, termenv.Ascii)
	assert.Contains(t, buf.String(), `\_/`)
	assert.NotContains(t, buf.String(), "\x1b[")
}
