// Package ratelimit fornece adapters HTTP (net/http) para o rate limit por
// créditos e para o limite de concorrência do gateway.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (Ledger, CostTable, Decision), sem net/http
//   - application: casos de uso (débito, penalidade, acquire/timeout) sem net/http
//   - infra: implementações concretas (ledger memória/redis, stats, semáforo)
//   - ratelimit (este pacote): middlewares HTTP + derivação de chave + tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Deriva a chave do chamador (user autenticado, header, XFF ou IP)
//  2. Debita o custo da rota via camada application (janela fixa de créditos)
//  3. Se bloqueado, responde 429 com Retry-After e X-RateLimit-*
//  4. Se permitido, chama o próximo handler; respostas 401 pagam penalidade extra
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o
// comportamento, como RATE_LIMIT_CREDITS_PER_MINUTE, RATE_LIMIT_ROUTE_COSTS,
// RATE_LIMIT_BACKEND e CONCURRENCY_MAX.
package ratelimit
