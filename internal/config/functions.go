package config

import (
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// EnvFunc returns the value of an environment variable, or "" when unset.
var EnvFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "name", Type: cty.String},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
		return cty.StringVal(os.Getenv(args[0].AsString())), nil
	},
})

// Functions returns the functions available to suite file expressions.
func Functions() map[string]function.Function {
	return map[string]function.Function{
		"env":      EnvFunc,
		"join":     stdlib.JoinFunc,
		"format":   stdlib.FormatFunc,
		"lower":    stdlib.LowerFunc,
		"upper":    stdlib.UpperFunc,
		"coalesce": stdlib.CoalesceFunc,
	}
}

// NewEvalContext builds the evaluation context for a suite file living in
// dir.
func NewEvalContext(dir string) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"suite_dir": cty.StringVal(dir),
		},
		Functions: Functions(),
	}
}
