package domain

import "context"

// SlotPool limita quantas requests atravessam o gate ao mesmo tempo. É o
// complemento instantâneo do Ledger: créditos controlam volume por janela,
// vagas controlam pressão no momento.
//
// Acquire bloqueia até abrir uma vaga ou o ctx encerrar. Ao adquirir, retorna
// a função de release, que devolve a vaga e deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}
