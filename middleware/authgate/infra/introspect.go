package infra

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"keeper-gateway/middleware/authgate/domain"
)

// IntrospectionClient fala com o endpoint de introspecção do provedor de
// identidade (RFC 7662): POST form com o token, autenticação basic com as
// credenciais de cliente do processo.
type IntrospectionClient struct {
	endpoint     string
	clientID     string
	clientSecret string

	httpClient *http.Client
	now        func() time.Time
}

type IntrospectionOption func(*IntrospectionClient)

func WithHTTPClient(c *http.Client) IntrospectionOption {
	return func(i *IntrospectionClient) { i.httpClient = c }
}

func WithIntrospectionClock(now func() time.Time) IntrospectionOption {
	return func(i *IntrospectionClient) { i.now = now }
}

func NewIntrospectionClient(endpoint, clientID, clientSecret string, opts ...IntrospectionOption) *IntrospectionClient {
	c := &IntrospectionClient{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Introspect implementa domain.Introspector.
//
// active=false é retorno normal (resultado cacheável com TTL curto), não erro.
// Falhas de rede/HTTP/parse viram *domain.IntrospectionError e nunca devem ser
// cacheadas pelo chamador.
func (c *IntrospectionClient) Introspect(ctx context.Context, token string) (*domain.IntrospectionResult, error) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &domain.IntrospectionError{Reason: domain.ReasonNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.IntrospectionError{Reason: domain.ReasonNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		// drena para reuso de conexão; o corpo de erro não interessa
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, &domain.IntrospectionError{
			Reason: domain.ReasonHTTPError,
			Err:    &httpStatusError{status: resp.StatusCode},
		}
	}

	var claims domain.Claims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, &domain.IntrospectionError{Reason: domain.ReasonMalformedResponse, Err: err}
	}

	active, ok := claims["active"].(bool)
	if !ok {
		return nil, &domain.IntrospectionError{
			Reason: domain.ReasonMalformedResponse,
			Err:    errMissingActive,
		}
	}

	return &domain.IntrospectionResult{
		Active:    active,
		Claims:    claims,
		FetchedAt: c.now(),
	}, nil
}

type httpStatusError struct{ status int }

func (e *httpStatusError) Error() string {
	return "introspection endpoint returned " + http.StatusText(e.status)
}

type missingActiveError struct{}

func (missingActiveError) Error() string { return `response has no boolean "active" field` }

var errMissingActive = missingActiveError{}
