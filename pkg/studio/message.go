package studio

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Status tracks long-running generations. Text and image replies have none.
type Status string

const (
	StatusNone       Status = ""
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Source is one grounding reference attached to a chat reply.
type Source struct {
	Title string
	URI   string
}

// Message is one entry of the studio history. For image and video replies
// Content holds a data: URL or the remote URI, and Data the raw bytes.
type Message struct {
	ID          string
	Role        Role
	Kind        Kind
	Content     string
	Data        []byte
	MIMEType    string
	Status      Status
	OperationID string
	Sources     []Source
	Timestamp   time.Time
}

func newMessage(role Role, kind Kind, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// History is the ordered, concurrency-safe message log of a studio.
type History struct {
	mu    sync.RWMutex
	msgs  []Message
	index map[string]int
}

func NewHistory() *History {
	return &History{index: make(map[string]int)}
}

func (h *History) Append(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.index[m.ID] = len(h.msgs)
	h.msgs = append(h.msgs, m)
}

// Update applies fn to the message with the given id in place. It reports
// whether the message exists.
func (h *History) Update(id string, fn func(*Message)) (Message, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	i, ok := h.index[id]
	if !ok {
		return Message{}, false
	}
	fn(&h.msgs[i])
	return h.msgs[i], true
}

func (h *History) Get(id string) (Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	i, ok := h.index[id]
	if !ok {
		return Message{}, false
	}
	return h.msgs[i], true
}

// Messages returns a snapshot in insertion order.
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]Message(nil), h.msgs...)
}

func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.msgs)
}
