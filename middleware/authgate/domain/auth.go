package domain

import (
	"context"
	"strconv"
	"time"
)

// Claims é o mapa de claims retornado pela introspecção (RFC 7662).
// Valores são JSON arbitrário decodificado (string, float64, bool, slices, mapas).
type Claims map[string]any

// String lê um claim textual; ausente ou de outro tipo vira "".
func (c Claims) String(name string) string {
	v, _ := c[name].(string)
	return v
}

// Float lê um claim numérico. Números JSON decodificam como float64, mas
// aceita também string numérica (alguns IdPs serializam metadados assim).
func (c Claims) Float(name string) float64 {
	switch v := c[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

// IntrospectionResult é o resultado de uma introspecção de token.
//
// Imutável após construção: um refresh substitui a entrada de cache inteira,
// nunca altera o resultado já guardado. Active=false é um resultado válido
// ("token reconhecidamente inválido"), distinto de falha de introspecção.
type IntrospectionResult struct {
	Active    bool
	Claims    Claims
	FetchedAt time.Time
}

// AuthContext é o contexto de identidade construído uma vez por request e
// anexado para o downstream e para a derivação de chave do rate limit.
// Somente leitura após construção.
type AuthContext struct {
	Authenticated bool
	// FailedOpen marca a request que seguiu anônima porque a introspecção
	// estava indisponível e o processo opera em fail-open: o Guard deixa
	// passar, o rate limit trata como anônimo.
	FailedOpen bool
	// Identity é o id estável do chamador (claim "sub" por padrão).
	Identity string
	// CreditsPerMinute é o override de teto de créditos vindo dos claims
	// (0 = sem override, usar o padrão do processo).
	CreditsPerMinute float64
	Claims           Claims
}

// TokenCache guarda resultados de introspecção indexados pelo token cru
// (o hash é responsabilidade da implementação; o token nunca é persistido).
type TokenCache interface {
	Lookup(ctx context.Context, token string) (*IntrospectionResult, bool)
	Store(ctx context.Context, token string, res *IntrospectionResult)
}

// Introspector valida um token junto ao provedor de identidade.
// Erros de rede/HTTP são IntrospectionError; Active=false não é erro.
type Introspector interface {
	Introspect(ctx context.Context, token string) (*IntrospectionResult, error)
}

// EvalResult é o veredito do avaliador de política sobre os claims.
type EvalResult struct {
	Accept bool
}

// PolicyEvaluator roda a expressão de política configurada sobre os claims.
//
// A avaliação é pura (sem I/O, sem mutação). Claims ausentes contam como
// rejeição, nunca como pânico; expressão malformada falha na subida do
// processo, não por request.
type PolicyEvaluator interface {
	Evaluate(claims Claims) EvalResult
}
