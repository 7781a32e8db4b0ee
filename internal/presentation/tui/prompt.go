package tui

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/aretw0/authtree/pkg/domain"
)

// Prompter collects callback answers interactively.
type Prompter struct {
	raw io.Reader
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and writes prompts to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{raw: in, in: bufio.NewReader(in), out: out}
}

// Ask prompts for every callback and returns the answers keyed by callback name.
// Text output callbacks are only displayed.
func (p *Prompter) Ask(callbacks []domain.Callback) (map[string]any, error) {
	answers := make(map[string]any, len(callbacks))
	for _, cb := range callbacks {
		if cb.Type == domain.CallbackText {
			fmt.Fprintln(p.out, cb.Prompt)
			continue
		}

		value, err := p.ask(cb)
		if err != nil {
			return nil, err
		}
		answers[cb.Name] = value
	}
	return answers, nil
}

func (p *Prompter) ask(cb domain.Callback) (string, error) {
	prompt := cb.Prompt
	if prompt == "" {
		prompt = cb.Name
	}
	if len(cb.Options) > 0 {
		prompt = fmt.Sprintf("%s [%s]", prompt, strings.Join(cb.Options, "/"))
	}
	if cb.Default != "" {
		prompt = fmt.Sprintf("%s (%s)", prompt, cb.Default)
	}

	for {
		fmt.Fprintf(p.out, "%s: ", prompt)

		value, err := p.read(cb.Type == domain.CallbackPassword)
		if err != nil {
			return "", err
		}
		if value == "" {
			value = cb.Default
		}
		if len(cb.Options) == 0 || slices.Contains(cb.Options, value) {
			return value, nil
		}
		fmt.Fprintf(p.out, "%q is not one of %s\n", value, strings.Join(cb.Options, ", "))
	}
}

func (p *Prompter) read(secret bool) (string, error) {
	if secret {
		value, ok, err := readSecret(p.raw)
		if ok {
			fmt.Fprintln(p.out)
			return value, err
		}
	}

	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}
