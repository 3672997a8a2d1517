// Package infra contém as implementações concretas do rate limit por créditos:
// o ledger em memória (janela fixa, lock por bucket), o ledger redis (script
// atômico + fallback local), os stores de estatística e o pool de concorrência.
package infra
