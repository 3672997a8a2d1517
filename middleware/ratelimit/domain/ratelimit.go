package domain

import (
	"context"
	"strings"
	"time"
)

type Key string

// Decision é o resultado de uma tentativa de consumo de créditos.
type Decision struct {
	Allowed bool
	// Remaining é o saldo de créditos na janela atual após a decisão.
	Remaining float64
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Normalmente o tempo até o início da próxima janela. Se 0, não há recomendação.
	RetryAfter time.Duration
}

// Ledger controla o saldo de créditos por chave dentro de uma janela fixa.
//
// Contrato de consistência: duas chamadas concorrentes de TryConsume para a
// mesma chave nunca podem ambas consumir a última unidade de crédito. A
// implementação em memória garante isso com lock por bucket (correta dentro
// de um processo); a implementação redis, com script atômico (correta entre
// múltiplos processos compartilhando o mesmo backend).
type Ledger interface {
	// TryConsume tenta debitar cost créditos da chave, com teto limit na janela.
	// Um débito que deixaria o saldo negativo é rejeitado, não truncado.
	TryConsume(ctx context.Context, key Key, cost, limit float64) Decision

	// Penalize debita até amount créditos da chave, truncando em zero.
	// Usado para penalidades pós-resposta (ex: 401); nunca deixa saldo negativo.
	Penalize(ctx context.Context, key Key, amount, limit float64) Decision
}

// CostEntry associa um prefixo de rota a um custo em créditos.
type CostEntry struct {
	Prefix string
	Cost   float64
}

// CostTable resolve o custo em créditos de uma rota.
//
// A primeira entrada cujo prefixo casa com o path vence; rotas sem entrada
// usam Default. A ordem das entradas importa (prefixos mais específicos primeiro).
type CostTable struct {
	Default float64
	Entries []CostEntry
}

func (t CostTable) CostFor(path string) float64 {
	for _, e := range t.Entries {
		if e.Prefix != "" && (path == e.Prefix || strings.HasPrefix(path, e.Prefix)) {
			return e.Cost
		}
	}
	return t.Default
}
