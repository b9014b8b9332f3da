package tui

import (
	"fmt"

	"github.com/muesli/termenv"
)

// PrintBanner outputs an ASCII art banner for Psylens.
func PrintBanner() {
	p := termenv.ColorProfile()
	// Using a subtle gradient-like color scheme (Indigo/Violet)
	s1 := termenv.String(`  ____  ____  __   __ _      _____ _   _ ____  `).Foreground(p.Color("#818cf8"))
	s2 := termenv.String(` |  _ \/ ___| \ \ / /| |    | ____| \ | / ___| `).Foreground(p.Color("#a78bfa"))
	s3 := termenv.String(` | |_) \___ \  \ V / | |    |  _| |  \| \___ \ `).Foreground(p.Color("#c084fc"))
	s4 := termenv.String(` |  __/ ___) |  | |  | |___ | |___| |\  |___) |`).Foreground(p.Color("#e879f9"))
	s5 := termenv.String(` |_|   |____/   |_|  |_____||_____|_| \_|____/ `).Foreground(p.Color("#f472b6"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println()
}
