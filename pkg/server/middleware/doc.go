// Package middleware provides HTTP middleware for the gateway server:
// request ID generation, structured request logging, panic recovery, and
// per-request timeouts.
package middleware
