package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the reVISit banner to w using the given color profile.
func PrintBanner(w io.Writer, p termenv.Profile) {
	lines := []struct{ text, color string }{
		{"  _ __ ___\\ \\   / /_ _/ ___|_ _| |_ ", "#818cf8"},
		{" | '__/ _ \\ \\ / / | |\\___ \\| || __|", "#c084fc"},
		{" | | |  __/\\ V /  | | ___) | || |_ ", "#e879f9"},
		{" |_|  \\___| \\_/  |___|____/___|\\__|", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w)
}
