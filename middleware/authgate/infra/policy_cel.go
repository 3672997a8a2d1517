package infra

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"keeper-gateway/middleware/authgate/domain"
)

// CELPolicy é um avaliador de política compilado uma única vez, na subida do
// processo, a partir do texto de expressão configurado. A expressão enxerga a
// variável `claims` (map<string, dyn>), ex:
//
//	"read" in claims.scopes && claims.tenant == "acme"
//
// Erro de compilação (ou expressão não-booleana) é erro de configuração e
// derruba a subida; uma regra ruim nunca desliga a autenticação em silêncio.
// Erro em tempo de avaliação (claim ausente, tipo inesperado) vira rejeição.
type CELPolicy struct {
	prg cel.Program
	src string
}

func NewCELPolicy(expr string) (*CELPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("claims", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("policy environment: %w", err)
	}

	ast, iss := env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("policy expression: %w", iss.Err())
	}
	// dyn passa no check estático (ex: claims.admin); em runtime, não-bool rejeita
	if t := ast.OutputType(); t != cel.BoolType && t != cel.DynType {
		return nil, fmt.Errorf("policy expression must evaluate to bool, got %s", t)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("policy program: %w", err)
	}

	return &CELPolicy{prg: prg, src: expr}, nil
}

func (p *CELPolicy) Source() string { return p.src }

// Evaluate implementa domain.PolicyEvaluator. Pura, sem I/O.
func (p *CELPolicy) Evaluate(claims domain.Claims) domain.EvalResult {
	if claims == nil {
		claims = domain.Claims{}
	}
	out, _, err := p.prg.Eval(map[string]any{
		"claims": map[string]any(claims),
	})
	if err != nil {
		// claim ausente ou tipo inesperado: indefinido conta como falso
		return domain.EvalResult{Accept: false}
	}
	accepted, ok := out.Value().(bool)
	return domain.EvalResult{Accept: ok && accepted}
}
