package engine

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
)

const visibilityQuery = "data.presence.visibility.show_details"

// DefaultVisibilityPolicy shows details to administrators and to users looking at themselves.
const DefaultVisibilityPolicy = `package presence.visibility

default show_details := false

show_details if {
	"administrator" in input.viewer.roles
}

show_details if {
	input.viewer.id > 0
	input.viewer.id == input.subject.id
}
`

// OPAEvaluator evaluates the visibility policy with OPA Rego. The policy is compiled once.
type OPAEvaluator struct {
	query rego.PreparedEvalQuery
}

// NewOPAEvaluator compiles policy (DefaultVisibilityPolicy when empty) and prepares the visibility query.
func NewOPAEvaluator(ctx context.Context, policy string) (*OPAEvaluator, error) {
	if strings.TrimSpace(policy) == "" {
		policy = DefaultVisibilityPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"visibility.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile visibility policy: %w", err)
	}
	query, err := rego.New(
		rego.Query(visibilityQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare visibility query: %w", err)
	}
	return &OPAEvaluator{query: query}, nil
}

// LoadPolicyFile reads a Rego policy from path. An empty path returns "" (use the default policy).
func LoadPolicyFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read visibility policy: %w", err)
	}
	return string(b), nil
}

func buildInput(viewer Viewer, subjectUserID int64) map[string]interface{} {
	roles := make([]interface{}, len(viewer.Roles))
	for i, r := range viewer.Roles {
		roles[i] = r
	}
	return map[string]interface{}{
		"viewer":  map[string]interface{}{"id": viewer.UserID, "roles": roles},
		"subject": map[string]interface{}{"id": subjectUserID},
	}
}

// ShowDetails evaluates the policy for viewer and subject. An undefined result counts as false.
func (e *OPAEvaluator) ShowDetails(ctx context.Context, viewer Viewer, subjectUserID int64) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(buildInput(viewer, subjectUserID)))
	if err != nil {
		return false, fmt.Errorf("eval visibility policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil
	}
	v, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("visibility policy returned %T, want bool", rs[0].Expressions[0].Value)
	}
	return v, nil
}

// HealthCheck evaluates the prepared query against an anonymous viewer. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	if _, err := e.ShowDetails(ctx, Viewer{}, 0); err != nil {
		return err
	}
	return nil
}
