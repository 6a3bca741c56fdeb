// Package migrations embarque les migrations SQL appliquées par goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
