package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

// Keys used per queue, all under "<prefix>:<name>:".
//
//	next       counter of assigned indices
//	pending    list of pending indices in dequeue order
//	jobs       hash index -> encoded pending job
//	failed     list of failed indices in bury order
//	failed:jobs hash index -> encoded failed job
//	held       sorted set of every index still stored
//	tasks      hash task id -> encoded task
//	tasks:order sorted set of task ids scored by first insertion
//	tasks:seq  counter for tasks:order scores
type keys struct {
	next, pending, jobs, failed, failedJobs, held, tasks, taskOrder, taskSeq string
}

func newKeys(prefix, name string) keys {
	base := prefix + ":" + name + ":"
	return keys{
		next:       base + "next",
		pending:    base + "pending",
		jobs:       base + "jobs",
		failed:     base + "failed",
		failedJobs: base + "failed:jobs",
		held:       base + "held",
		tasks:      base + "tasks",
		taskOrder:  base + "tasks:order",
		taskSeq:    base + "tasks:seq",
	}
}

var popScript = redis.NewScript(`
local idx = redis.call('LPOP', KEYS[1])
if not idx then return false end
local data = redis.call('HGET', KEYS[2], idx)
redis.call('HDEL', KEYS[2], idx)
redis.call('ZREM', KEYS[3], idx)
return data
`)

// clearScript drops a list of indices together with its hash and their
// entries in the held set.
var clearScript = redis.NewScript(`
local ids = redis.call('LRANGE', KEYS[1], 0, -1)
for _, id in ipairs(ids) do redis.call('ZREM', KEYS[3], id) end
redis.call('DEL', KEYS[1], KEYS[2])
return #ids
`)

// Adapter implements queue.TaskAdapter on Redis. Pop is atomic across
// processes; priority is local to the adapter instance.
type Adapter struct {
	client   redis.UniversalClient
	codec    queue.Codec
	prefix   string
	keys     keys
	priority atomic.Int32
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithPriority sets the initial ordering.
func WithPriority(p queue.Priority) Option {
	return func(a *Adapter) { a.SetPriority(p) }
}

// WithCodec sets the codec used for stored jobs.
func WithCodec(c queue.Codec) Option {
	return func(a *Adapter) {
		if c != nil {
			a.codec = c
		}
	}
}

// WithKeyPrefix sets the key namespace. Default is "jobqueue".
func WithKeyPrefix(prefix string) Option {
	return func(a *Adapter) {
		if prefix != "" {
			a.prefix = prefix
		}
	}
}

// New returns an adapter for the queue called name.
func New(client redis.UniversalClient, name string, opts ...Option) *Adapter {
	a := &Adapter{
		client: client,
		codec:  queue.NewJSONCodec(nil),
		prefix: "jobqueue",
	}
	for _, opt := range opts {
		opt(a)
	}
	a.keys = newKeys(a.prefix, name)
	return a
}

func idx(i int64) string { return strconv.FormatInt(i, 10) }

func (a *Adapter) Push(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return queue.ErrJobNil
	}
	data, err := a.codec.Encode(job)
	if err != nil {
		return err
	}
	i, err := a.client.Incr(ctx, a.keys.next).Result()
	if err != nil {
		return err
	}
	toHead := queue.PushToHead(a.Priority(), job)
	_, err = a.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, a.keys.jobs, idx(i), data)
		p.ZAdd(ctx, a.keys.held, redis.Z{Score: float64(i), Member: idx(i)})
		if toHead {
			p.LPush(ctx, a.keys.pending, idx(i))
		} else {
			p.RPush(ctx, a.keys.pending, idx(i))
		}
		return nil
	})
	return err
}

func (a *Adapter) Pop(ctx context.Context) (*queue.Job, error) {
	data, err := popScript.Run(ctx, a.client, []string{a.keys.pending, a.keys.jobs, a.keys.held}).Text()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.codec.Decode([]byte(data))
}

func (a *Adapter) HasJobs(ctx context.Context) (bool, error) {
	n, err := a.client.LLen(ctx, a.keys.pending).Result()
	return n > 0, err
}

func (a *Adapter) Bounds(ctx context.Context) (int64, int64, error) {
	end, err := a.client.Get(ctx, a.keys.next).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, err
	}
	low, err := a.client.ZRangeWithScores(ctx, a.keys.held, 0, 0).Result()
	if err != nil {
		return 0, 0, err
	}
	if len(low) == 0 {
		return end + 1, end, nil
	}
	return int64(low[0].Score), end, nil
}

func (a *Adapter) Status(ctx context.Context, index int64) (queue.Status, error) {
	var pending, failed *redis.BoolCmd
	_, err := a.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		pending = p.HExists(ctx, a.keys.jobs, idx(index))
		failed = p.HExists(ctx, a.keys.failedJobs, idx(index))
		return nil
	})
	if err != nil {
		return queue.StatusOpen, err
	}
	switch {
	case pending.Val():
		return queue.StatusPending, nil
	case failed.Val():
		return queue.StatusFailed, nil
	}
	return queue.StatusOpen, nil
}

func (a *Adapter) Bury(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return queue.ErrJobNil
	}
	data, err := a.codec.Encode(job)
	if err != nil {
		return err
	}
	i, err := a.client.Incr(ctx, a.keys.next).Result()
	if err != nil {
		return err
	}
	_, err = a.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, a.keys.failedJobs, idx(i), data)
		p.ZAdd(ctx, a.keys.held, redis.Z{Score: float64(i), Member: idx(i)})
		p.RPush(ctx, a.keys.failed, idx(i))
		return nil
	})
	return err
}

func (a *Adapter) HasFailedJob(ctx context.Context, index int64) (bool, error) {
	return a.client.HExists(ctx, a.keys.failedJobs, idx(index)).Result()
}

func (a *Adapter) FailedJob(ctx context.Context, index int64) (*queue.Job, error) {
	data, err := a.FailedJobData(ctx, index)
	if err != nil {
		return nil, err
	}
	return a.codec.Decode(data)
}

func (a *Adapter) FailedJobData(ctx context.Context, index int64) ([]byte, error) {
	data, err := a.client.HGet(ctx, a.keys.failedJobs, idx(index)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: failed index %d", queue.ErrJobNotFound, index)
	}
	return data, err
}

func (a *Adapter) HasFailedJobs(ctx context.Context) (bool, error) {
	n, err := a.client.LLen(ctx, a.keys.failed).Result()
	return n > 0, err
}

func (a *Adapter) FailedJobs(ctx context.Context) ([]*queue.Job, error) {
	ids, err := a.client.LRange(ctx, a.keys.failed, 0, -1).Result()
	if err != nil || len(ids) == 0 {
		return []*queue.Job{}, err
	}
	vals, err := a.client.HMGet(ctx, a.keys.failedJobs, ids...).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]*queue.Job, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		job, err := a.codec.Decode([]byte(s))
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (a *Adapter) ClearFailed(ctx context.Context) error {
	return clearScript.Run(ctx, a.client, []string{a.keys.failed, a.keys.failedJobs, a.keys.held}).Err()
}

func (a *Adapter) Clear(ctx context.Context) error {
	return clearScript.Run(ctx, a.client, []string{a.keys.pending, a.keys.jobs, a.keys.held}).Err()
}

func (a *Adapter) SetPriority(p queue.Priority) {
	if p.Valid() {
		a.priority.Store(int32(p))
	}
}

func (a *Adapter) Priority() queue.Priority { return queue.Priority(a.priority.Load()) }
func (a *Adapter) IsFIFO() bool             { return a.Priority() == queue.FIFO }
func (a *Adapter) IsFILO() bool             { return a.Priority() == queue.FILO }

func (a *Adapter) Schedule(ctx context.Context, task *queue.Job) error {
	if task == nil {
		return queue.ErrJobNil
	}
	if !task.IsTask() {
		return queue.ErrNotTask
	}
	data, err := a.codec.Encode(task)
	if err != nil {
		return err
	}
	seq, err := a.client.Incr(ctx, a.keys.taskSeq).Result()
	if err != nil {
		return err
	}
	_, err = a.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, a.keys.tasks, task.ID, data)
		// NX keeps the original position when a task is rescheduled
		p.ZAddNX(ctx, a.keys.taskOrder, redis.Z{Score: float64(seq), Member: task.ID})
		return nil
	})
	return err
}

func (a *Adapter) Tasks(ctx context.Context) ([]string, error) {
	ids, err := a.client.ZRange(ctx, a.keys.taskOrder, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (a *Adapter) Task(ctx context.Context, id string) (*queue.Job, error) {
	data, err := a.client.HGet(ctx, a.keys.tasks, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.codec.Decode(data)
}

func (a *Adapter) UpdateTask(ctx context.Context, task *queue.Job) error {
	return a.Schedule(ctx, task)
}

func (a *Adapter) RemoveTask(ctx context.Context, id string) error {
	_, err := a.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, a.keys.tasks, id)
		p.ZRem(ctx, a.keys.taskOrder, id)
		return nil
	})
	return err
}

func (a *Adapter) TaskCount(ctx context.Context) (int, error) {
	n, err := a.client.HLen(ctx, a.keys.tasks).Result()
	return int(n), err
}

func (a *Adapter) HasTasks(ctx context.Context) (bool, error) {
	n, err := a.TaskCount(ctx)
	return n > 0, err
}

func (a *Adapter) ClearTasks(ctx context.Context) error {
	return a.client.Del(ctx, a.keys.tasks, a.keys.taskOrder).Err()
}

// Healthcheck pings the server.
func (a *Adapter) Healthcheck(ctx context.Context) error {
	return Healthcheck(a.client)(ctx)
}
