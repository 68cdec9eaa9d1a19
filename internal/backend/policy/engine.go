// Package policy decides which chat questions the backend will answer.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// Decision values returned by the policy.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Input is evaluated against the question policy.
type Input struct {
	Question  string `json:"question"`
	MaxLength int    `json:"max_length"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a policy engine from rego source.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.question_policy.result"),
		rego.Module("question_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate returns the decision and an optional reason for in.
func (e *Engine) Evaluate(ctx context.Context, in Input) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "default", nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return DecisionAllow, "unexpected return type", nil
	}
	decision, _ := obj["decision"].(string)
	reason, _ := obj["reason"].(string)
	if decision == "" {
		decision = DecisionAllow
	}
	return decision, reason, nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package question_policy

default result = {"decision": "allow", "reason": ""}

blocked_phrases = [
	"ignore previous instructions",
	"ignore all previous instructions",
	"system prompt",
]

result = {"decision": "deny", "reason": "question too long"} {
	input.max_length > 0
	count(input.question) > input.max_length
} else = {"decision": "deny", "reason": "off-topic request"} {
	some i
	contains(lower(input.question), blocked_phrases[i])
}
`
