package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner outputs the ASCII art banner for Arbiter with the version.
func PrintBanner(version string) {
	p := termenv.ColorProfile()
	// Subtle gradient-like color scheme (Indigo/Violet)
	s1 := termenv.String("    _         _     _ _            ").Foreground(p.Color("#818cf8"))
	s2 := termenv.String("   / \\   _ __| |__ (_) |_ ___ _ __ ").Foreground(p.Color("#a78bfa"))
	s3 := termenv.String("  / _ \\ | '__| '_ \\| | __/ _ \\ '__|").Foreground(p.Color("#c084fc"))
	s4 := termenv.String(" / ___ \\| |  | |_) | | ||  __/ |   ").Foreground(p.Color("#e879f9"))
	s5 := termenv.String("/_/   \\_\\_|  |_.__/|_|\\__\\___|_|   ").Foreground(p.Color("#f472b6"))
	ver := termenv.String("session authority engine " + version).Foreground(p.Color("#fb7185"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println(ver)
	fmt.Println()
}
