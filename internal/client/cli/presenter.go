package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/client/validation"
)

// terminalPresenter renders flow effects as lines of text.
type terminalPresenter struct {
	mu       sync.Mutex
	out      io.Writer
	navigate func(route string)
	form     *form
}

func newTerminalPresenter(out io.Writer, navigate func(string)) *terminalPresenter {
	return &terminalPresenter{out: out, navigate: navigate}
}

// attach points ClearInput at f; nil detaches.
func (p *terminalPresenter) attach(f *form) {
	p.mu.Lock()
	p.form = f
	p.mu.Unlock()
}

func (p *terminalPresenter) ShowFieldErrors(errs validation.FieldErrors) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, field := range errs.Fields() {
		for _, msg := range errs[field] {
			fmt.Fprintf(p.out, "  %s: %s\n", validation.FieldLabel(field), msg)
		}
	}
}

func (p *terminalPresenter) Notify(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "! %s\n", message)
}

func (p *terminalPresenter) Navigate(route string) {
	p.navigate(route)
}

func (p *terminalPresenter) SetLoading(loading bool) {
	if !loading {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, "Working...")
}

func (p *terminalPresenter) ClearInput() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.form != nil {
		p.form.reset()
	}
}
