// Package migrations embeds the schema migration files so the binary can
// apply them without a deploy-time asset directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Files lists the migrations in apply order.
var Files = []string{
	"001_create_tasks.sql",
	"002_create_task_events.sql",
}
