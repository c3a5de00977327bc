package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []string{
	`  _                 _   `,
	` | | ___ __   ___ | |_ `,
	` | |/ / '_ \ / _ \| __|`,
	` |   <| | | | (_) | |_ `,
	` |_|\_\_| |_|\___/ \__|`,
}

// Subtle gradient-like color scheme (Indigo/Violet)
var bannerColors = []string{"#818cf8", "#a78bfa", "#c084fc", "#e879f9", "#f472b6"}

// PrintBanner writes the knot ASCII art banner to w.
func PrintBanner(w io.Writer) {
	p := termenv.NewOutput(w).ColorProfile()

	fmt.Fprintln(w)
	for i, line := range bannerLines {
		fmt.Fprintln(w, termenv.String(line).Foreground(p.Color(bannerColors[i])))
	}
	fmt.Fprintln(w)
}
