// Package sqlstore is a queue.TaskAdapter on database/sql, backed either by
// PostgreSQL through pgx or by SQLite through modernc.org/sqlite.
//
// A Store owns the connection and the schema; it hands out one Adapter per
// queue name. Schema changes ship as embedded goose migrations and are
// applied with Store.Migrate.
//
//	store, err := sqlstore.OpenPostgres(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//	if err := store.Migrate(ctx); err != nil {
//	    return err
//	}
//	q, err := queue.NewQueue("emails", store.Queue("emails"))
//
// On PostgreSQL, Pop locks its row with FOR UPDATE SKIP LOCKED so concurrent
// workers never block on each other. SQLite is limited to a single
// connection.
package sqlstore
