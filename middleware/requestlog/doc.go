// Package requestlog fornece o id de correlação por request (X-Request-ID) e
// o log estruturado de request/resposta do gateway.
package requestlog
