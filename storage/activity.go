package storage

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"

	"github.com/wynnblevins/kanban/domain"
)

// Activity is one entry of the board activity feed.
type Activity struct {
	BoardID string    `json:"boardId"`
	Event   string    `json:"event"`
	Version int64     `json:"version"`
	Columns int       `json:"columns"`
	Tasks   int       `json:"tasks"`
	At      time.Time `json:"at"`
}

// NewActivity summarises a board change.
func NewActivity(boardID string, change domain.Change, at time.Time) Activity {
	return Activity{
		BoardID: boardID,
		Event:   change.Event,
		Version: change.Version,
		Columns: len(change.Snapshot.Columns),
		Tasks:   len(change.Snapshot.Tasks),
		At:      at.UTC(),
	}
}

// ActivityQueue sends activity entries to an Azure storage queue.
type ActivityQueue struct {
	queue *azqueue.QueueClient
}

func NewActivityQueue(connStr, name string) (*ActivityQueue, error) {
	opts := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, &opts)
	if err != nil {
		return nil, err
	}
	return &ActivityQueue{queue: q}, nil
}

func (q *ActivityQueue) Send(ctx context.Context, a Activity) error {
	data, err := sonic.Marshal(a)
	if err != nil {
		return err
	}
	_, err = q.queue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// Pending returns the approximate number of entries not yet consumed.
func (q *ActivityQueue) Pending(ctx context.Context) (int32, error) {
	resp, err := q.queue.GetProperties(ctx, nil)
	if err != nil {
		return 0, err
	}
	if resp.ApproximateMessagesCount == nil {
		return 0, nil
	}
	return *resp.ApproximateMessagesCount, nil
}
