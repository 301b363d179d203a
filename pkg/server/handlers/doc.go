// Package handlers provides the HTTP endpoint handlers of the gate server.
//
// GenerateHandler serves POST /api/generate-content. It expects to run behind
// the identity and admission middleware: by the time it reads the body the
// request has been attributed to a user and counted against their quota.
package handlers
