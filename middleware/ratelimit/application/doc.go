// Package application contém os casos de uso do rate limit (decisão de débito,
// penalidade pós-resposta, aquisição de vaga) sem dependência de net/http.
package application
