package application

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"keeper-gateway/middleware/authgate/domain"
)

// VerifierService concentra o pipeline de verificação de token:
// cache → introspecção (no miss) → política → AuthContext.
//
// Ele não sabe nada sobre HTTP; o adapter traduz os erros em 401.
type VerifierService struct {
	Cache        domain.TokenCache
	Introspector domain.Introspector
	// Policy é opcional; ausente, active=true é o único critério de aceite.
	Policy domain.PolicyEvaluator

	// IdentityClaim é o claim usado como identidade estável (padrão "sub").
	IdentityClaim string
	// CreditsClaim é o claim com o override de créditos/minuto do chamador.
	CreditsClaim string

	// FailOpen: com a introspecção indisponível, segue como anônimo em vez de
	// rejeitar. O padrão (false) é fail-closed, a postura mais segura.
	FailOpen bool

	Logger *zap.Logger
}

type introspectOutcome struct {
	res *domain.IntrospectionResult
	err error
}

// Verify resolve o token em um AuthContext autenticado.
//
// Erros possíveis: *domain.IntrospectionError (só com FailOpen=false),
// domain.ErrTokenInactive, domain.ErrPolicyRejected, ou o erro do ctx se a
// request foi cancelada durante a introspecção.
//
// Com FailOpen=true e introspecção indisponível, retorna um AuthContext
// anônimo com FailedOpen=true e sem erro; o Guard usa a marca para não
// rejeitar a request.
func (s *VerifierService) Verify(ctx context.Context, token string) (*domain.AuthContext, error) {
	res, ok := s.Cache.Lookup(ctx, token)
	if !ok {
		var err error
		res, err = s.introspect(ctx, token)
		if err != nil {
			var ie *domain.IntrospectionError
			if errors.As(err, &ie) && s.FailOpen {
				s.logger().Warn("introspection unavailable, failing open as anonymous",
					zap.String("reason", string(ie.Reason)))
				return &domain.AuthContext{FailedOpen: true}, nil
			}
			return nil, err
		}
	}

	if !res.Active {
		return nil, domain.ErrTokenInactive
	}

	if s.Policy != nil && !s.Policy.Evaluate(res.Claims).Accept {
		return nil, domain.ErrPolicyRejected
	}

	identityClaim := s.IdentityClaim
	if identityClaim == "" {
		identityClaim = "sub"
	}

	return &domain.AuthContext{
		Authenticated:    true,
		Identity:         res.Claims.String(identityClaim),
		CreditsPerMinute: res.Claims.Float(s.CreditsClaim),
		Claims:           res.Claims,
	}, nil
}

// introspect roda a introspecção desacoplada do cancelamento da request: se o
// chamador desistir, a chamada em voo ainda termina e povoa o cache (bom para
// as próximas requests), mas quem cancelou retorna na hora, sem esperar o
// efeito colateral.
func (s *VerifierService) introspect(ctx context.Context, token string) (*domain.IntrospectionResult, error) {
	done := make(chan introspectOutcome, 1)
	detached := context.WithoutCancel(ctx)

	go func() {
		res, err := s.Introspector.Introspect(detached, token)
		if err == nil {
			// falha de introspecção nunca entra no cache; active=false entra
			// (TTL curto fica a cargo do cache)
			s.Cache.Store(detached, token, res)
		}
		done <- introspectOutcome{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		return out.res, out.err
	}
}

func (s *VerifierService) logger() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}
