package cli

import (
	"fmt"
	"strings"
)

// getStatus renders the prompt prefix: route, then user and mode when known.
func (a *App) getStatus() string {
	a.mu.Lock()
	route, mode, verifying := a.route, a.mode, a.verifying
	a.mu.Unlock()

	var parts []string
	if u := a.auth.Snapshot().CurrentUser; u != nil {
		parts = append(parts, u.Label())
	}
	if verifying {
		parts = append(parts, "verifying")
	}
	if mode != "" {
		parts = append(parts, string(mode))
	}

	s := "[" + route + "]"
	if len(parts) > 0 {
		s += fmt.Sprintf(" (%s)", strings.Join(parts, " "))
	}
	return s
}
