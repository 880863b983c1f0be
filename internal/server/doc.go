// Package server is the HTTP surface of Flux.
//
// Routes are registered on a standard ServeMux and wrapped by a small
// middleware chain (request logging, tracing, CORS). REST handlers delegate
// to the application services; the websocket route hands the upgraded
// connection to the chat handler. The file layout follows the concerns:
// routes, middleware, origin policy, JSON responses, one file of handlers
// per resource, and the http.Server lifecycle.
package server
