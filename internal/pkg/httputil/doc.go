// Package httputil provides shared HTTP response/request utilities for handlers.
//
// Handlers write every response through these helpers so all endpoints use
// the same JSON envelope and error shape.
package httputil
