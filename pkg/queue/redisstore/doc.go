// Package redisstore is a queue.TaskAdapter backed by Redis via go-redis.
//
// Every queue lives under "<prefix>:<name>:" and uses a list for pending
// order, hashes for job bodies and a sorted set of held indices for Bounds.
// Pop runs as a Lua script so that concurrent workers never receive the same
// job.
//
//	client, err := redisstore.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	q, err := queue.NewQueue("emails", redisstore.New(client, "emails"))
package redisstore
