package services

import (
	"context"

	"github.com/fastygo/sessions/domain"
	"github.com/fastygo/sessions/internal/infrastructure/buffer"
	"github.com/fastygo/sessions/repository"
)

// BufferBridge lets the session store defer database writes to the bbolt buffer.
type BufferBridge struct {
	processor *BufferProcessor
}

func NewBufferBridge(processor *BufferProcessor) *BufferBridge {
	return &BufferBridge{processor: processor}
}

func (b *BufferBridge) BufferSession(_ context.Context, op domain.PendingOperation) error {
	if b == nil || b.processor == nil {
		return domain.ErrInvalidPayload
	}
	item, err := buffer.NewSessionItem(op)
	if err != nil {
		return err
	}
	return b.processor.Enqueue(item)
}

var _ repository.OperationBuffer = (*BufferBridge)(nil)
