// Package feed carries record-change notifications from writers to the
// recompute coordinators. Two backends exist: an in-process bus and AMQP.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

type (
	Kind string

	// Event announces that one record changed. Consumers refetch the full
	// record set; the event itself carries no record payload.
	Event struct {
		Kind     Kind      `json:"kind"`
		RecordID string    `json:"record_id"`
		OwnerID  string    `json:"owner_id"`
		At       time.Time `json:"at"`
	}
)

func NewEvent(kind Kind, recordID, ownerID string) Event {
	return Event{Kind: kind, RecordID: recordID, OwnerID: ownerID, At: time.Now()}
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func EventFromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("unmarshal feed event: %w", err)
	}
	return e, nil
}

// Feed is the change-feed collaborator. Subscriptions are scoped to an
// owner: a subscriber only sees events for its own ledger.
type Feed interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(ctx context.Context, ownerID string, fn func(Event)) (Subscription, error)
}

// Subscription is the handle returned by Subscribe. After Unsubscribe
// returns, fn is never invoked again.
type Subscription interface {
	Unsubscribe() error
}
