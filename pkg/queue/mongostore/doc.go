// Package mongostore is a queue.TaskAdapter backed by MongoDB through the
// official v2 driver.
//
// All queues of a database share three collections: jobqueue_jobs,
// jobqueue_tasks and jobqueue_counters. Call EnsureIndexes once at start-up.
//
//	client, err := mongostore.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	db := client.Database(cfg.Database)
//	if err := mongostore.EnsureIndexes(ctx, db); err != nil {
//	    return err
//	}
//	q, err := queue.NewQueue("emails", mongostore.New(db, "emails"))
package mongostore
