package dashboard

import (
	"encoding/json"
	"sync"
	"time"

	auditsync "github.com/joostmulder/AuditPro/internal/sync"
	"github.com/sirupsen/logrus"
)

// SyncStateData is one sequencer state change.
type SyncStateData struct {
	State   string `json:"state"`
	Index   int    `json:"index,omitempty"`
	Total   int    `json:"total,omitempty"`
	AuditID string `json:"audit_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// SyncCompleteData is the outcome of one pass.
type SyncCompleteData struct {
	State    string        `json:"state"`
	Message  string        `json:"message"`
	Uploaded int           `json:"uploaded"`
	Pending  int           `json:"pending"`
	Stores   int           `json:"stores"`
	Products int           `json:"products"`
	Duration time.Duration `json:"duration"`
}

// StatsData holds the counters shown by the monitor.
type StatsData struct {
	Passes        int       `json:"passes"`
	Failures      int       `json:"failures"`
	Uploaded      int       `json:"uploaded"`
	PendingAudits int       `json:"pending_audits"`
	Stores        int       `json:"stores"`
	Products      int       `json:"products"`
	State         string    `json:"state"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastCompleted time.Time `json:"last_completed,omitzero"`
}

// Handler turns sequencer events and pass results into dashboard messages.
// It implements sync.Observer.
type Handler struct {
	server *Server
	logger logrus.FieldLogger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a handler broadcasting through server. New clients are
// greeted with the current stats.
func NewHandler(server *Server, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = server.logger
	}
	h := &Handler{
		server: server,
		logger: logger,
		stats:  StatsData{State: auditsync.StateIdle.String()},
	}
	server.SetWelcome(h.statsMessage)
	return h
}

// OnEvent implements sync.Observer.
func (h *Handler) OnEvent(e auditsync.Event) {
	h.mu.Lock()
	h.stats.State = e.State.String()
	if e.Message != "" {
		h.stats.LastMessage = e.Message
	}
	h.mu.Unlock()

	data := SyncStateData{
		State:   e.State.String(),
		Index:   e.Index,
		Total:   e.Total,
		Message: e.Message,
	}
	if e.State == auditsync.StateUploadingAudit {
		data.AuditID = e.AuditID.String()
	}
	h.send(MessageTypeSyncState, e.At, data)
}

// OnResult records a finished pass and broadcasts it with fresh stats.
func (h *Handler) OnResult(res auditsync.Result) {
	h.logger.WithFields(logrus.Fields{"state": res.State, "uploaded": res.Uploaded}).Debug("pass finished")

	h.mu.Lock()
	h.stats.Passes++
	h.stats.Uploaded += res.Uploaded
	h.stats.PendingAudits = res.Pending
	if res.State == auditsync.StateFailed {
		h.stats.Failures++
	}
	if res.OK() {
		h.stats.Stores = res.Stores
		h.stats.Products = res.Products
	}
	h.stats.State = res.State.String()
	h.stats.LastMessage = res.Message
	h.stats.LastCompleted = res.Finished
	h.mu.Unlock()

	h.send(MessageTypeSyncComplete, res.Finished, SyncCompleteData{
		State:    res.State.String(),
		Message:  res.Message,
		Uploaded: res.Uploaded,
		Pending:  res.Pending,
		Stores:   res.Stores,
		Products: res.Products,
		Duration: res.Finished.Sub(res.Started),
	})
	h.server.Broadcast(h.statsMessage())
}

// UpdateCounts sets the local database counters, typically at startup.
func (h *Handler) UpdateCounts(pending, stores, products int) {
	h.mu.Lock()
	h.stats.PendingAudits = pending
	h.stats.Stores = stores
	h.stats.Products = products
	h.mu.Unlock()
	h.server.Broadcast(h.statsMessage())
}

// Stats returns the current counters.
func (h *Handler) Stats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) statsMessage() Message {
	stats := h.Stats()
	data, err := json.Marshal(stats)
	if err != nil {
		h.logger.WithError(err).Warn("failed to marshal stats")
	}
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

func (h *Handler) send(typ MessageType, at time.Time, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.WithError(err).WithField("type", typ).Warn("failed to marshal message")
		return
	}
	h.server.Broadcast(Message{Type: typ, Timestamp: at, Data: data})
}
