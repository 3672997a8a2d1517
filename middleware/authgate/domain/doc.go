// Package domain define os contratos do gate de autenticação: resultado de
// introspecção, cache de tokens, avaliador de política e o AuthContext anexado
// a cada request. Sem dependência de net/http nem de infraestrutura.
package domain
