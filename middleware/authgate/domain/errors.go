package domain

import "errors"

// IntrospectionReason classifica falhas ao falar com o provedor de identidade.
type IntrospectionReason string

const (
	ReasonNetwork           IntrospectionReason = "network"
	ReasonHTTPError         IntrospectionReason = "http_error"
	ReasonMalformedResponse IntrospectionReason = "malformed_response"
)

// IntrospectionError indica que a introspecção falhou (rede, HTTP ou resposta
// malformada). Nunca é cacheado; o gate decide fail-closed (padrão) ou
// fail-open. Não confundir com Active=false, que é um resultado válido.
type IntrospectionError struct {
	Reason IntrospectionReason
	Err    error
}

func (e *IntrospectionError) Error() string {
	if e.Err != nil {
		return "introspection failed (" + string(e.Reason) + "): " + e.Err.Error()
	}
	return "introspection failed (" + string(e.Reason) + ")"
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

var (
	// ErrTokenInactive: introspecção respondeu active=false.
	ErrTokenInactive = errors.New("token is not active")
	// ErrPolicyRejected: a política recusou os claims do token.
	ErrPolicyRejected = errors.New("token rejected by policy")
)
