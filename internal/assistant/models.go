// Package assistant assembles the pay context handed to an external
// text-generation service and returns its answer verbatim.
package assistant

import (
	"strings"
	"unicode/utf8"

	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
)

const (
	maxQuestionLength = 2000
	maxHistory        = 20
)

// Message is one prior turn of the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Question is an assistant request. EmployeeID and CompanyID narrow the
// context; both default to the caller's own.
type Question struct {
	Question   string        `json:"question"`
	EmployeeID id.EmployeeID `json:"employee_id,omitzero"`
	CompanyID  id.CompanyID  `json:"company_id,omitzero"`
	History    []Message     `json:"history"`
}

func (q *Question) Normalize() {
	q.Question = strings.TrimSpace(q.Question)
	for i := range q.History {
		q.History[i].Role = strings.ToLower(strings.TrimSpace(q.History[i].Role))
	}
}

func (q *Question) Validate() error {
	if q.Question == "" {
		return dErrors.New(dErrors.CodeValidation, "question is required")
	}
	if utf8.RuneCountInString(q.Question) > maxQuestionLength {
		return dErrors.Newf(dErrors.CodeValidation, "question must be at most %d characters", maxQuestionLength)
	}
	if len(q.History) > maxHistory {
		return dErrors.Newf(dErrors.CodeValidation, "history must have at most %d messages", maxHistory)
	}
	for _, m := range q.History {
		if m.Role != "user" && m.Role != "assistant" {
			return dErrors.Newf(dErrors.CodeValidation, "history role %q is not supported", m.Role)
		}
	}
	return nil
}

// Prompt is what the text-generation service receives.
type Prompt struct {
	Question string         `json:"question"`
	Context  map[string]any `json:"context"`
	History  []Message      `json:"history"`
}

// Answer is returned to the caller.
type Answer struct {
	Answer      string   `json:"answer"`
	ContextKeys []string `json:"context_keys"`
}
