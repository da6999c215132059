// Package schemas holds the JSON Schemas for the files robustack-dl writes.
package schemas

import _ "embed"

// Manifest is the JSON Schema of manifest.json.
//
//go:embed manifest.schema.json
var Manifest []byte
