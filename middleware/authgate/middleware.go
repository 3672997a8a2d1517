package authgate

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"keeper-gateway/middleware/authgate/application"
	"keeper-gateway/middleware/authgate/domain"
)

type Options struct {
	Verifier *application.VerifierService
	Logger   *zap.Logger
}

// RoutePredicate responde se a rota da request exige autenticação.
type RoutePredicate func(r *http.Request) bool

// RequireAuthPrefixes constrói o predicado por prefixos de path.
func RequireAuthPrefixes(prefixes []string) RoutePredicate {
	return func(r *http.Request) bool {
		for _, p := range prefixes {
			if p != "" && (r.URL.Path == p || strings.HasPrefix(r.URL.Path, p)) {
				return true
			}
		}
		return false
	}
}

// Extract resolve o bearer token (quando presente) em um AuthContext e o
// anexa ao contexto da request, cedo na cadeia. Nunca rejeita: a tradução em
// 401 fica com Require e Guard, mais para dentro.
//
// Sem Verifier configurado (auth desligada no processo), toda request segue
// anônima.
func Extract(opts Options) func(next http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || opts.Verifier == nil {
				next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), anonymous)))
				return
			}

			ac, err := opts.Verifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					// o cliente desistiu; não vale escrever resposta
					return
				}
				logInvalidToken(logger, err)
				ac = anonymous
			}

			next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), ac)))
		})
	}
}

// Require rejeita com 401 as rotas protegidas chamadas sem nenhum token.
//
// Repare que ele só olha a presença do header: um token presente mas inválido
// passa daqui e é rejeitado pelo Guard, que fica depois do rate limit: assim
// a request inválida paga o custo e a penalidade de 401, enquanto a request
// sem token em rota protegida é barrada antes de qualquer débito.
func Require(required RoutePredicate) func(next http.Handler) http.Handler {
	if required == nil {
		required = func(*http.Request) bool { return false }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := bearerToken(r); !ok && required(r) {
				unauthorized(w, `{"detail":"Authentication required"}`)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Guard rejeita com 401 requests que apresentaram um token que não resolveu
// (inativo, rejeitado pela política, ou introspecção indisponível em
// fail-closed). A request marcada como FailedOpen passa: em fail-open a
// introspecção indisponível segue como anônima em vez de rejeitar.
func Guard() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := bearerToken(r); ok {
				if ac := FromContext(r.Context()); !ac.Authenticated && !ac.FailedOpen {
					unauthorized(w, `{"detail":"Invalid or expired token"}`)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(body))
}

// logInvalidToken loga o motivo sem nunca tocar no valor do token.
func logInvalidToken(logger *zap.Logger, err error) {
	var ie *domain.IntrospectionError
	switch {
	case errors.As(err, &ie):
		logger.Warn("introspection failed, treating token as invalid",
			zap.String("reason", string(ie.Reason)),
			zap.Error(ie.Err))
	case errors.Is(err, domain.ErrPolicyRejected):
		logger.Info("token rejected by policy")
	case errors.Is(err, domain.ErrTokenInactive):
		logger.Debug("token is not active")
	default:
		logger.Warn("token verification failed", zap.Error(err))
	}
}
