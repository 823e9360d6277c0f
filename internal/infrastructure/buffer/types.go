package buffer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fastygo/sessions/domain"
)

const EntitySession = "session"

// Session writes share one priority so they replay in the order they were issued: a delete
// buffered after a token rotation only matches the row once the rotation has been applied.
const sessionPriority = 1

// Item represents a database write that should be retried when Postgres is unavailable.
type Item struct {
	ID        string          `json:"id"`
	Entity    string          `json:"entity"`
	Operation string          `json:"operation"`
	Data      json.RawMessage `json:"data"`
	Priority  int             `json:"priority"`
	Seq       uint64          `json:"seq"`
	Retries   int             `json:"retries"`
	Timestamp time.Time       `json:"timestamp"`

	bucketKey []byte
}

// NewSessionItem packs a pending session write into a buffer item.
func NewSessionItem(op domain.PendingOperation) (Item, error) {
	if op.Kind == "" {
		return Item{}, domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(op)
	if err != nil {
		return Item{}, err
	}
	return Item{
		Entity:    EntitySession,
		Operation: op.Kind,
		Data:      payload,
		Priority:  sessionPriority,
		Timestamp: op.At,
	}, nil
}

// SessionOperation decodes the pending write carried by the item.
func (i Item) SessionOperation() (domain.PendingOperation, error) {
	var op domain.PendingOperation
	if i.Entity != EntitySession {
		return op, domain.NewError(domain.ErrCodeInvalid, "buffer: unsupported entity "+i.Entity)
	}
	if err := json.Unmarshal(i.Data, &op); err != nil {
		return op, domain.WrapError(domain.ErrCodeCorrupt, "buffer: corrupt session operation", err)
	}
	return op, nil
}

func (i *Item) normalize() {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Priority <= 0 || i.Priority > 5 {
		i.Priority = sessionPriority
	}
	if i.Timestamp.IsZero() {
		i.Timestamp = time.Now()
	}
}
