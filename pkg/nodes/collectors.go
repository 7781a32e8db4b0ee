package nodes

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/authtree/pkg/domain"
)

const (
	TypeUsernameCollector = "UsernameCollectorNode"
	TypePasswordCollector = "PasswordCollectorNode"
	TypeChoiceCollector   = "ChoiceCollectorNode"

	// OutcomeNext is the single outcome of collector and state nodes.
	OutcomeNext = "outcome"

	// KeyPassword is the transient state key holding the collected password.
	KeyPassword = "password"
)

// UsernameCollector asks for a username and stores it in shared state.
type UsernameCollector struct {
	Prompt string `config:"prompt"`
}

func (n *UsernameCollector) Process(_ context.Context, tc *domain.TreeContext) (domain.Action, error) {
	username, _ := tc.Answers[domain.KeyUsername].(string)
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.Suspend(domain.Callback{
			Type:   domain.CallbackName,
			Name:   domain.KeyUsername,
			Prompt: orDefault(n.Prompt, "User Name"),
		}), nil
	}
	return domain.Action{
		Outcome:     OutcomeNext,
		SharedState: domain.Delta{domain.KeyUsername: username},
	}, nil
}

// PasswordCollector asks for a password and keeps it in transient state only.
type PasswordCollector struct {
	Prompt string `config:"prompt"`
}

func (n *PasswordCollector) Process(_ context.Context, tc *domain.TreeContext) (domain.Action, error) {
	password, _ := tc.Answers[KeyPassword].(string)
	if password == "" {
		return domain.Suspend(domain.Callback{
			Type:   domain.CallbackPassword,
			Name:   KeyPassword,
			Prompt: orDefault(n.Prompt, "Password"),
		}), nil
	}
	return domain.Action{
		Outcome:        OutcomeNext,
		TransientState: domain.Delta{KeyPassword: password},
	}, nil
}

// ChoiceCollector presents a fixed list of choices; the chosen value is the outcome.
type ChoiceCollector struct {
	Prompt  string   `config:"prompt"`
	Choices []string `config:"choices"`
	Default string   `config:"default"`
}

func (n *ChoiceCollector) validate() error {
	if len(n.Choices) == 0 {
		return fmt.Errorf("choices must not be empty")
	}
	if n.Default != "" && !slices.Contains(n.Choices, n.Default) {
		return fmt.Errorf("default %q is not one of the choices", n.Default)
	}
	return nil
}

func (n *ChoiceCollector) Process(_ context.Context, tc *domain.TreeContext) (domain.Action, error) {
	choice, _ := tc.Answers["choice"].(string)
	if choice == "" && tc.HasAnswers() && n.Default != "" {
		choice = n.Default
	}
	if choice == "" {
		return domain.Suspend(domain.Callback{
			Type:    domain.CallbackChoice,
			Name:    "choice",
			Prompt:  n.Prompt,
			Options: append([]string(nil), n.Choices...),
			Default: n.Default,
		}), nil
	}
	if !slices.Contains(n.Choices, choice) {
		return domain.Action{}, fmt.Errorf("choice %q is not one of %v", choice, n.Choices)
	}
	return domain.Action{
		Outcome:    choice,
		AuditEntry: map[string]any{"choice": choice},
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
