package database

import (
	_ "embed"
	"strings"
)

var (
	//go:embed schema/sqlite.sql
	sqliteSchema string

	//go:embed schema/postgres.sql
	postgresSchema string
)

// statements splits a schema file into its individual statements.
func statements(schema string) []string {
	var stmts []string

	for _, stmt := range strings.Split(schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}

	return stmts
}
