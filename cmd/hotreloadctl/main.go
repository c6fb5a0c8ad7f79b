// Command hotreloadctl is a terminal dashboard for a running hot-reload
// session: connected browser count, the most recent broadcast frame, and
// cache/diff statistics, all read from the same /stats and /ws surfaces a
// browser tab uses -- it never talks to the Engine directly.
package main

import (
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:3001", "host:port of a running hot-reload server")
	flag.Parse()

	p := tea.NewProgram(newModel(*addr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "hotreloadctl:", err)
		os.Exit(1)
	}
}
