package progress

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"contentforge/internal/domain"
	"contentforge/internal/infra"
)

const createdChannel = "jobs:created"

// Update is the job snapshot delivered to subscribers on every observed
// status or progress change.
type Update struct {
	ID         string           `json:"id"`
	UserID     string           `json:"userId"`
	Mode       string           `json:"mode"`
	Status     domain.JobStatus `json:"status"`
	Progress   int              `json:"progress"`
	Count      int              `json:"count"`
	Percentage int              `json:"percentage"`
	Error      string           `json:"error,omitempty"`
	At         time.Time        `json:"at"`
}

// Snapshot flattens a job record into an Update.
func Snapshot(job *domain.Job) Update {
	return Update{
		ID:         job.ID,
		UserID:     job.UserID,
		Mode:       string(job.Mode),
		Status:     job.Status,
		Progress:   job.Progress,
		Count:      job.Count,
		Percentage: job.Percentage(),
		Error:      job.Error,
		At:         time.Now().UTC(),
	}
}

// Broker relays job lifecycle events over Redis pub/sub. The processor
// publishes a full snapshot after every job-record write; API instances
// subscribe per job and relay the feed to clients. Publication order follows
// write order within one job because the processor is the only writer and
// publishes synchronously.
type Broker struct {
	client *redis.Client
	logger infra.Logger
}

// NewBroker wraps an established Redis client.
func NewBroker(client *redis.Client, logger infra.Logger) *Broker {
	return &Broker{client: client, logger: logger}
}

// PublishJob broadcasts the job's current snapshot to its channel.
func (b *Broker) PublishJob(ctx context.Context, job *domain.Job) {
	payload, err := json.Marshal(Snapshot(job))
	if err != nil {
		b.logger.Error().Err(err).Str("job_id", job.ID).Msg("progress: marshal snapshot")
		return
	}
	if err := b.client.Publish(ctx, jobChannel(job.ID), payload).Err(); err != nil {
		// Progress delivery is best-effort; the job record in the store
		// remains the source of truth.
		b.logger.Warn().Err(err).Str("job_id", job.ID).Msg("progress: publish failed")
	}
}

// NotifyCreated wakes workers listening for new jobs.
func (b *Broker) NotifyCreated(ctx context.Context, jobID string) {
	if err := b.client.Publish(ctx, createdChannel, jobID).Err(); err != nil {
		b.logger.Warn().Err(err).Str("job_id", jobID).Msg("progress: created notify failed")
	}
}

// SubscribeJob delivers snapshots for one job until the returned stop
// function is called or the context ends. The channel is closed on stop.
func (b *Broker) SubscribeJob(ctx context.Context, jobID string) (<-chan Update, func()) {
	sub := b.client.Subscribe(ctx, jobChannel(jobID))
	updates := make(chan Update, 16)

	go func() {
		defer close(updates)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var update Update
				if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
					b.logger.Warn().Err(err).Str("job_id", jobID).Msg("progress: bad update payload")
					continue
				}
				select {
				case updates <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return updates, func() { _ = sub.Close() }
}

// SubscribeCreated delivers ids of newly created jobs for worker wakeup.
// Claims are idempotent, so missed or duplicated wakeups are harmless; the
// worker's polling fallback covers gaps.
func (b *Broker) SubscribeCreated(ctx context.Context) (<-chan string, func()) {
	sub := b.client.Subscribe(ctx, createdChannel)
	ids := make(chan string, 16)

	go func() {
		defer close(ids)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case ids <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ids, func() { _ = sub.Close() }
}

func jobChannel(jobID string) string {
	return "jobs:update:" + jobID
}
