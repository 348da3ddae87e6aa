package swagger

import _ "embed"

// OpenAPI is the OpenAPI 3 description of every exodetect route.
//
//go:embed openapi.yaml
var OpenAPI []byte
