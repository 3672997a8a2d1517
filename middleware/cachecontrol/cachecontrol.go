// Package cachecontrol define o header Cache-Control por prefixo de rota.
//
// As respostas do downstream são dados de consulta cacheáveis; o gateway
// decide o max-age por rota para CDNs/clientes, sem tocar no corpo.
package cachecontrol

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Rule associa um prefixo de path a um max-age. MaxAge 0 suprime o header
// (ex: healthcheck).
type Rule struct {
	Prefix string
	MaxAge time.Duration
}

type Options struct {
	// Default é o max-age de rotas sem regra. 0 = sem header.
	Default time.Duration
	// Rules em ordem: a primeira que casar vence.
	Rules []Rule
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// header decidido antes do next: depois do WriteHeader do
			// downstream seria tarde
			if ttl := opts.maxAgeFor(r.URL.Path); ttl > 0 {
				w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(ttl/time.Second)))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (o Options) maxAgeFor(path string) time.Duration {
	for _, rule := range o.Rules {
		if rule.Prefix != "" && (path == rule.Prefix || strings.HasPrefix(path, rule.Prefix)) {
			return rule.MaxAge
		}
	}
	return o.Default
}
