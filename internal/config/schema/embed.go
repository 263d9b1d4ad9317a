package schema

import _ "embed"

//go:embed next-dev-utils-config.schema.json
var ConfigSchema []byte
