// Package infra contém as implementações concretas do gate de autenticação:
// cliente de introspecção RFC 7662, cache de tokens em dois níveis (LRU local
// + redis compartilhado, chaves com HMAC salgado) e a política CEL compilada
// na subida do processo.
package infra
