// Package openapi embeds the HTTP API description for runtime distribution.
package openapi

import _ "embed"

// APISpec contains the OpenAPI document for the /api/v1 surface.
//
//go:embed amari-api.yaml
var APISpec []byte

// Spec returns a copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), APISpec...)
}
