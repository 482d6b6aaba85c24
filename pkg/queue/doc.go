// Package queue provides a backend-agnostic job queue with cron-scheduled
// tasks.
//
// The package is organised around a few small pieces:
//
//   - Job: a unit of work plus attempt bookkeeping; a Job with a
//     cron.Expression schedule is a Task
//   - Adapter: pluggable storage for pending and failed jobs; TaskAdapter
//     adds a task store
//   - Queue: binds a name to an Adapter and runs jobs (Work) and due
//     tasks (Run)
//   - Worker: fans Work and Run out across named queues and can run as a
//     background daemon
//
// # Lifecycle
//
// A job is pushed to an adapter, popped by Queue.Work, started and run.
// Success marks it completed. An error or panic marks it failed and pushes it
// back for a later retry. Every attempt increments Attempts; once a job has
// exhausted MaxAttempts or passed RunUntil it is no longer valid, and the next
// pop moves it to the adapter's failed store instead of running it.
//
// Tasks stay in the task store. Queue.Run evaluates each one, executes it when
// due and writes the new state back with UpdateTask, removing it once it is no
// longer valid. Tasks whose schedule has a seconds field are polled once per
// second for a minute, concurrently and cancellable through the context.
//
// # Ordering
//
// Priority lives on the adapter. FIFO pushes to the tail, FILO to the head,
// and both pop from the head. Under FILO a job whose last attempt failed is
// pushed to the tail so retries do not starve new work.
//
// # Work units
//
// A job runs exactly one of:
//
//   - a callable: a CallableFunc, rebound by name through a Registry after
//     the job is decoded from storage
//   - a command: a named CommandFunc looked up on the App passed to Work
//   - a shell command line run with sh -c
//
// # Usage
//
//	adapter := queue.NewMemoryAdapter()
//	q, err := queue.NewQueue("emails", adapter, queue.WithPriority(queue.FIFO))
//	if err != nil {
//	    return err
//	}
//
//	job := queue.NewJob(
//	    queue.WithCallable("send", sendEmail, "user@example.com"),
//	    queue.WithMaxAttempts(3),
//	)
//	if err := q.AddJob(ctx, job); err != nil {
//	    return err
//	}
//
//	task := queue.NewTask(cron.DailyAt(2, 30), queue.WithShell("make backup"))
//	if err := q.AddTask(ctx, task); err != nil {
//	    return err
//	}
//
//	w := queue.NewWorker(queue.WithApp(app))
//	_ = w.AddQueue(q)
//	g.Go(w.Process(ctx))
//
// # Error Handling
//
// Configuration errors are returned synchronously. Execution errors become
// failed attempts on the job. Adapter errors propagate to the caller of Work
// and Run untouched. Sentinel errors are declared in errors.go and match with
// errors.Is.
package queue
