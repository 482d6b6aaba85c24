package mongostore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

const (
	countersCollection = "jobqueue_counters"
	jobsCollection     = "jobqueue_jobs"
	tasksCollection    = "jobqueue_tasks"

	statusPending = 1
	statusFailed  = 2
)

type jobDoc struct {
	Queue    string `bson:"queue"`
	Index    int64  `bson:"idx"`
	Position int64  `bson:"position"`
	Status   int    `bson:"status"`
	Payload  []byte `bson:"payload"`
}

type taskDoc struct {
	Queue   string `bson:"queue"`
	ID      string `bson:"id"`
	Seq     int64  `bson:"seq"`
	Payload []byte `bson:"payload"`
}

// EnsureIndexes creates the indexes the adapter relies on. It is safe to
// call on every start.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(jobsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "queue", Value: 1}, {Key: "idx", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "queue", Value: 1}, {Key: "status", Value: 1}, {Key: "position", Value: 1}}},
	})
	if err != nil {
		return err
	}
	_, err = db.Collection(tasksCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "queue", Value: 1}, {Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

// Adapter implements queue.TaskAdapter on MongoDB. Pop uses
// FindOneAndDelete so each job is handed out once.
type Adapter struct {
	db       *mongo.Database
	name     string
	codec    queue.Codec
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

// New returns an adapter for the queue called name stored in db.
func New(db *mongo.Database, name string, opts ...Option) *Adapter {
	a := &Adapter{db: db, name: name, codec: queue.NewJSONCodec(nil)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) jobs() *mongo.Collection  { return a.db.Collection(jobsCollection) }
func (a *Adapter) tasks() *mongo.Collection { return a.db.Collection(tasksCollection) }

func (a *Adapter) nextIndex(ctx context.Context) (int64, error) {
	var counter struct {
		Next int64 `bson:"next"`
	}
	err := a.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": a.name},
		bson.M{"$inc": bson.M{"next": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	return counter.Next, err
}

func (a *Adapter) insert(ctx context.Context, job *queue.Job, status int, toHead bool) error {
	if job == nil {
		return queue.ErrJobNil
	}
	data, err := a.codec.Encode(job)
	if err != nil {
		return err
	}
	idx, err := a.nextIndex(ctx)
	if err != nil {
		return err
	}
	position := idx
	if toHead {
		position = -idx
	}
	_, err = a.jobs().InsertOne(ctx, jobDoc{
		Queue:    a.name,
		Index:    idx,
		Position: position,
		Status:   status,
		Payload:  data,
	})
	return err
}

func (a *Adapter) Push(ctx context.Context, job *queue.Job) error {
	if job == nil {
		return queue.ErrJobNil
	}
	return a.insert(ctx, job, statusPending, queue.PushToHead(a.Priority(), job))
}

func (a *Adapter) Pop(ctx context.Context) (*queue.Job, error) {
	var doc jobDoc
	err := a.jobs().FindOneAndDelete(ctx,
		bson.M{"queue": a.name, "status": statusPending},
		options.FindOneAndDelete().SetSort(bson.D{{Key: "position", Value: 1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.codec.Decode(doc.Payload)
}

func (a *Adapter) exists(ctx context.Context, filter bson.M) (bool, error) {
	n, err := a.jobs().CountDocuments(ctx, filter, options.Count().SetLimit(1))
	return n > 0, err
}

func (a *Adapter) HasJobs(ctx context.Context) (bool, error) {
	return a.exists(ctx, bson.M{"queue": a.name, "status": statusPending})
}

func (a *Adapter) Bounds(ctx context.Context) (int64, int64, error) {
	var counter struct {
		Next int64 `bson:"next"`
	}
	err := a.db.Collection(countersCollection).FindOne(ctx, bson.M{"_id": a.name}).Decode(&counter)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, 0, err
	}
	end := counter.Next

	var low jobDoc
	err = a.jobs().FindOne(ctx, bson.M{"queue": a.name},
		options.FindOne().SetSort(bson.D{{Key: "idx", Value: 1}}).SetProjection(bson.M{"idx": 1}),
	).Decode(&low)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return end + 1, end, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return low.Index, end, nil
}

func (a *Adapter) Status(ctx context.Context, index int64) (queue.Status, error) {
	var doc jobDoc
	err := a.jobs().FindOne(ctx, bson.M{"queue": a.name, "idx": index},
		options.FindOne().SetProjection(bson.M{"status": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return queue.StatusOpen, nil
	}
	if err != nil {
		return queue.StatusOpen, err
	}
	if doc.Status == statusFailed {
		return queue.StatusFailed, nil
	}
	return queue.StatusPending, nil
}

func (a *Adapter) Bury(ctx context.Context, job *queue.Job) error {
	return a.insert(ctx, job, statusFailed, false)
}

func (a *Adapter) HasFailedJob(ctx context.Context, index int64) (bool, error) {
	return a.exists(ctx, bson.M{"queue": a.name, "idx": index, "status": statusFailed})
}

func (a *Adapter) FailedJob(ctx context.Context, index int64) (*queue.Job, error) {
	data, err := a.FailedJobData(ctx, index)
	if err != nil {
		return nil, err
	}
	return a.codec.Decode(data)
}

func (a *Adapter) FailedJobData(ctx context.Context, index int64) ([]byte, error) {
	var doc jobDoc
	err := a.jobs().FindOne(ctx, bson.M{"queue": a.name, "idx": index, "status": statusFailed}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: failed index %d", queue.ErrJobNotFound, index)
	}
	if err != nil {
		return nil, err
	}
	return doc.Payload, nil
}

func (a *Adapter) HasFailedJobs(ctx context.Context) (bool, error) {
	return a.exists(ctx, bson.M{"queue": a.name, "status": statusFailed})
}

func (a *Adapter) FailedJobs(ctx context.Context) ([]*queue.Job, error) {
	cur, err := a.jobs().Find(ctx, bson.M{"queue": a.name, "status": statusFailed},
		options.Find().SetSort(bson.D{{Key: "idx", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var docs []jobDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	jobs := make([]*queue.Job, 0, len(docs))
	for _, d := range docs {
		job, err := a.codec.Decode(d.Payload)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (a *Adapter) ClearFailed(ctx context.Context) error {
	_, err := a.jobs().DeleteMany(ctx, bson.M{"queue": a.name, "status": statusFailed})
	return err
}

func (a *Adapter) Clear(ctx context.Context) error {
	_, err := a.jobs().DeleteMany(ctx, bson.M{"queue": a.name, "status": statusPending})
	return err
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
	_, err = a.tasks().UpdateOne(ctx,
		bson.M{"queue": a.name, "id": task.ID},
		bson.M{
			"$set":         bson.M{"payload": data},
			"$setOnInsert": bson.M{"seq": time.Now().UnixNano()},
		},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (a *Adapter) Tasks(ctx context.Context) ([]string, error) {
	cur, err := a.tasks().Find(ctx, bson.M{"queue": a.name},
		options.Find().
			SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "id", Value: 1}}).
			SetProjection(bson.M{"id": 1}),
	)
	if err != nil {
		return nil, err
	}
	var docs []taskDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

func (a *Adapter) Task(ctx context.Context, id string) (*queue.Job, error) {
	var doc taskDoc
	err := a.tasks().FindOne(ctx, bson.M{"queue": a.name, "id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a.codec.Decode(doc.Payload)
}

func (a *Adapter) UpdateTask(ctx context.Context, task *queue.Job) error {
	return a.Schedule(ctx, task)
}

func (a *Adapter) RemoveTask(ctx context.Context, id string) error {
	_, err := a.tasks().DeleteOne(ctx, bson.M{"queue": a.name, "id": id})
	return err
}

func (a *Adapter) TaskCount(ctx context.Context) (int, error) {
	n, err := a.tasks().CountDocuments(ctx, bson.M{"queue": a.name})
	return int(n), err
}

func (a *Adapter) HasTasks(ctx context.Context) (bool, error) {
	n, err := a.TaskCount(ctx)
	return n > 0, err
}

func (a *Adapter) ClearTasks(ctx context.Context) error {
	_, err := a.tasks().DeleteMany(ctx, bson.M{"queue": a.name})
	return err
}

// Healthcheck pings the server.
func (a *Adapter) Healthcheck(ctx context.Context) error {
	return Healthcheck(a.db.Client())(ctx)
}
