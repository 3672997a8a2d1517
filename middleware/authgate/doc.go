// Package authgate fornece os adapters HTTP do gate de autenticação: extração
// e verificação do bearer token com cache em dois níveis, política CEL e
// construção do AuthContext por request.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (IntrospectionResult, TokenCache, PolicyEvaluator)
//   - application: pipeline de verificação (cache → introspecção → política)
//   - infra: cliente RFC 7662, caches L1/L2, política CEL
//   - authgate (este pacote): middlewares HTTP + AuthContext no contexto da request
//
// Três middlewares compõem o gate, nesta ordem na cadeia (de fora para dentro):
//
//  1. Extract: resolve o token em AuthContext, nunca rejeita
//  2. Require: 401 para rota protegida sem token, antes do rate limit
//  3. Guard: 401 para token apresentado e não resolvido, depois do rate limit
//     (a request paga o custo e a penalidade de credencial inválida)
package authgate
