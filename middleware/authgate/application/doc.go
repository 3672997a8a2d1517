// Package application contém o caso de uso de verificação de token (cache,
// introspecção, política, construção do AuthContext) sem dependência de net/http.
package application
