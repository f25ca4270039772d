package scheduler

import (
	"strings"

	"github.com/pdk-cli/pdk/internal/pipeline"
	"github.com/pdk-cli/pdk/internal/variable"
)

// outcome is the running aggregate the condition evaluator consults:
// whether anything prior in scope (earlier jobs, or earlier steps in the
// same job) has already failed.
type outcome struct {
	anyFailure bool
}

// evaluateCondition implements spec §4.6's condition semantics: Always
// always runs; Success requires no prior failure; Failure requires at
// least one; Expression is resolved against the current variable
// resolver and interpreted by evalExpression.
//
// The spec leaves the Expression grammar as an open question (no worked
// examples beyond "${{ expr }} sites are syntax-checked only" during
// validation). Decision recorded in DESIGN.md: support the minimal
// GitHub-Actions-style function forms `success()`, `failure()`,
// `always()`, `cancelled()`, combined with `&&`/`||`/`!`, which covers
// every example a hosted-CI migration would realistically carry over
// without inventing a full expression language.
func evaluateCondition(cond *pipeline.Condition, o outcome, r *variable.Resolver, cancelled bool) (run bool, reason string) {
	if cond == nil {
		cond = &pipeline.DefaultCondition
	}
	switch cond.Kind {
	case pipeline.ConditionAlways:
		return true, "condition: always"
	case pipeline.ConditionSuccess:
		if o.anyFailure {
			return false, "condition: success() is false (a prior step or job failed)"
		}
		return true, "condition: success()"
	case pipeline.ConditionFailure:
		if !o.anyFailure {
			return false, "condition: failure() is false (nothing has failed yet)"
		}
		return true, "condition: failure()"
	case pipeline.ConditionExpression:
		expander := variable.NewExpander()
		expanded, err := expander.Expand(cond.Expr, r)
		if err != nil {
			return false, "condition expression failed to expand: " + err.Error()
		}
		result := evalExpression(expanded, o, cancelled)
		if result {
			return true, "condition: " + cond.Expr
		}
		return false, "condition: " + cond.Expr + " evaluated false"
	default:
		return true, "condition: unrecognized kind, defaulting to run"
	}
}

// evalExpression interprets the minimal function-and-boolean-operator
// grammar decided above. It is intentionally small: a full expression
// language is out of scope (spec's Expression variant is an opaque
// string the runtime alone understands).
func evalExpression(expr string, o outcome, cancelled bool) bool {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return !o.anyFailure
	}

	if strings.Contains(expr, "||") {
		for _, part := range strings.Split(expr, "||") {
			if evalExpression(part, o, cancelled) {
				return true
			}
		}
		return false
	}
	if strings.Contains(expr, "&&") {
		for _, part := range strings.Split(expr, "&&") {
			if !evalExpression(part, o, cancelled) {
				return false
			}
		}
		return true
	}

	negate := false
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "!") {
		negate = true
		expr = strings.TrimSpace(expr[1:])
	}

	var result bool
	switch expr {
	case "always()":
		result = true
	case "success()":
		result = !o.anyFailure
	case "failure()":
		result = o.anyFailure
	case "cancelled()":
		result = cancelled
	default:
		result = expr != "" && expr != "false"
	}
	if negate {
		return !result
	}
	return result
}
