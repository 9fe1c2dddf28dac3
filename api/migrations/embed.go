// Package migrations holds SQL that AutoMigrate cannot express: partial and
// composite indexes plus seed rows. Files run in order through goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
