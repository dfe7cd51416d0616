// Package schemas embeds the JSON schemas for rmbsgrade's configuration files.
package schemas

import _ "embed"

// FixturesSchemaJSON is the JSON Schema for fixture set YAML files.
//
//go:embed fixtures.schema.json
var FixturesSchemaJSON string
