package audit

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"slotbase.org/internal/auth"
	"slotbase.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit
// enrichment.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

const queueDepth = 256

// Recorder is the fire-and-forget audit sink. Record never blocks the auth
// flow: entries go through a buffered queue to a background writer, and a
// full queue drops the entry with a log line. Failures never propagate.
type Recorder struct {
	store     auth.AuditStore
	queue     chan auth.AuditEntry
	done      chan struct{}
	closeOnce sync.Once
}

var _ auth.Auditor = (*Recorder)(nil)

// NewRecorder starts the background writer. store may be nil; entries are
// then only emitted as structured log lines.
func NewRecorder(store auth.AuditStore) *Recorder {
	r := &Recorder{
		store: store,
		queue: make(chan auth.AuditEntry, queueDepth),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues an audit entry, enriched with the request id from ctx.
func (r *Recorder) Record(ctx context.Context, entry auth.AuditEntry) {
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = RequestIDFromContext(ctx)
	}
	select {
	case r.queue <- entry:
	default:
		obs.Logger().Println(`{"type":"audit","level":"warn","msg":"audit queue full, entry dropped","action":"` + entry.Action + `"}`)
	}
}

// Close stops the writer after draining queued entries.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)
	for entry := range r.queue {
		r.emit(entry)
		if r.store == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.store.Append(ctx, &entry); err != nil {
			obs.Logger().Println(`{"type":"audit","level":"warn","msg":"audit append failed","error":` + quote(err.Error()) + `}`)
		}
		cancel()
	}
}

// emit writes the structured audit log line.
func (r *Recorder) emit(entry auth.AuditEntry) {
	line := map[string]any{
		"ts":     entry.OccurredAt.Format(time.RFC3339Nano),
		"type":   "audit",
		"event":  entry.Action,
		"actor":  entry.ActorID,
		"entity": entry.EntityType,
	}
	if entry.RequestID != "" {
		line["request_id"] = entry.RequestID
	}
	if len(entry.Metadata) > 0 {
		fields := make(map[string]any, len(entry.Metadata))
		for k, v := range entry.Metadata {
			fields[k] = v
		}
		line["fields"] = fields
	}
	data, err := json.Marshal(line)
	if err != nil {
		return
	}
	obs.Logger().Println(string(data))
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
