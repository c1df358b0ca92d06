// Package migrations carries the client-state schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
