// Package api carries the OpenAPI description of the HTTP surface so
// servers can serve it and tests can hold the router to it.
package api

import _ "embed"

// Spec is the embedded OpenAPI 3 document.
//
//go:embed openapi.yaml
var Spec []byte
