// Package domain define os contratos do rate limit por créditos: o Ledger
// (saldo por chave em janela fixa), a tabela de custos por rota e os tipos de
// decisão/estatística. Sem dependência de net/http nem de infraestrutura.
package domain
