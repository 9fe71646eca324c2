package bridge

import (
	"fmt"

	"github.com/google/uuid"
)

// Category identifies a class of worker and its result channel.
type Category int

const (
	// CategoryLSP carries language server traffic.
	CategoryLSP Category = iota
	// CategoryFileIO carries file reads and saves.
	CategoryFileIO
	// CategoryWatch carries file system change notifications.
	CategoryWatch

	numCategories
)

// Categories lists every category in drain order.
func Categories() []Category {
	return []Category{CategoryLSP, CategoryFileIO, CategoryWatch}
}

func (c Category) String() string {
	switch c {
	case CategoryLSP:
		return "lsp"
	case CategoryFileIO:
		return "fileio"
	case CategoryWatch:
		return "watch"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

func (c Category) valid() bool {
	return c >= 0 && c < numCategories
}

// BufferID identifies an open buffer. The zero value means no buffer.
type BufferID uint64

// RequestID identifies one request issued by the loop. The zero value
// marks unsolicited messages.
type RequestID uuid.UUID

// String returns the canonical uuid form.
func (id RequestID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the zero value.
func (id RequestID) IsZero() bool {
	return id == RequestID{}
}

// Message is one result crossing from a worker to the loop. Payload is
// owned by the receiver once posted; workers must not retain it.
type Message struct {
	Category Category
	Buffer   BufferID
	Request  RequestID
	Payload  any
}

// WorkerExited is posted when a long-running worker stops. It marks the
// category degraded.
type WorkerExited struct {
	Worker string
	Err    error
}
