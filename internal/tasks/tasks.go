package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/owuorvin/jubabuy/internal/models"
	"github.com/owuorvin/jubabuy/internal/store"
)

// TaskType defines the type of a background task.
const (
	TypeListingView = "listing:view"
)

// QueueLow holds view counting; losing a few views under load is acceptable.
const QueueLow = "low"

// IAsynqClient defines the Asynq client methods used to enqueue work.
// This allows for mocking in tests.
type IAsynqClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// --- Task Client (Enqueuing tasks) ---

func redisOpt(rdb *redis.Client) asynq.RedisClientOpt {
	o := rdb.Options()
	return asynq.RedisClientOpt{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	}
}

func NewClient(rdb *redis.Client) *asynq.Client {
	return asynq.NewClient(redisOpt(rdb))
}

// ListingViewPayload identifies the listing whose counter is incremented.
type ListingViewPayload struct {
	Kind      models.Kind `json:"kind"`
	ListingID string      `json:"listing_id"`
}

// NewListingViewTask builds a view-count task.
func NewListingViewTask(kind models.Kind, id string) (*asynq.Task, error) {
	payload, err := json.Marshal(ListingViewPayload{Kind: kind, ListingID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal view payload: %w", err)
	}
	return asynq.NewTask(TypeListingView, payload), nil
}

// ViewEnqueuer records single-item views by enqueuing a task instead of writing inline.
type ViewEnqueuer struct {
	client IAsynqClient
}

func NewViewEnqueuer(client IAsynqClient) *ViewEnqueuer {
	return &ViewEnqueuer{client: client}
}

func (e *ViewEnqueuer) RecordView(ctx context.Context, kind models.Kind, id string) error {
	task, err := NewListingViewTask(kind, id)
	if err != nil {
		return err
	}
	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueLow),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue view for %s %s: %w", kind, id, err)
	}
	return nil
}

// --- Task Server (Processing tasks) ---

// TaskProcessor handles the processing of tasks.
// It holds dependencies needed by task handlers.
type TaskProcessor struct {
	listings store.ListingStore
}

func NewTaskProcessor(listings store.ListingStore) *TaskProcessor {
	return &TaskProcessor{listings: listings}
}

// SetupServer configures the Asynq server and its handler mux. The caller runs it.
func SetupServer(rdb *redis.Client, processor *TaskProcessor) (*asynq.Server, *asynq.ServeMux) {
	srv := asynq.NewServer(
		redisOpt(rdb),
		asynq.Config{
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				QueueLow:   1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("ERROR: task %s payload=%s: %v", task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeListingView, processor.HandleListingViewTask)
	fmt.Println("Registered listing view task handler.")

	return srv, mux
}

// --- Task Handlers ---

// HandleListingViewTask increments the view counter of one listing.
func (p *TaskProcessor) HandleListingViewTask(ctx context.Context, t *asynq.Task) error {
	var payload ListingViewPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal view task payload: %v: %w", err, asynq.SkipRetry)
	}
	kind, err := models.ParseKind(string(payload.Kind))
	if err != nil || payload.ListingID == "" {
		log.Printf("WARN: invalid view task payload: %s", string(t.Payload()))
		return fmt.Errorf("invalid view task payload: %w", asynq.SkipRetry)
	}

	err = p.listings.IncrementViews(ctx, kind, payload.ListingID)
	if errors.Is(err, store.ErrNotFound) {
		// Deleted between the read and the task.
		return fmt.Errorf("listing %s not found: %w", payload.ListingID, asynq.SkipRetry)
	}
	if err != nil {
		return fmt.Errorf("failed to increment views of %s: %w", payload.ListingID, err)
	}
	return nil
}
