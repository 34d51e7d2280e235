// Package migrations embeds the ordered SQL schema migrations.
package migrations

import "embed"

// FS holds every *.up.sql / *.down.sql file, applied in ascending version order.
//
//go:embed *.sql
var FS embed.FS
