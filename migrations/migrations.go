// Package migrations embeds the schema migrations so a deployed binary never
// depends on its working directory for the schema.
package migrations

import "embed"

//go:embed *.up.sql
var Files embed.FS
