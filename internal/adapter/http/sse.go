package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clipflow/clipflow/internal/domain"
	"github.com/clipflow/clipflow/internal/service"
)

type SSEHandler struct {
	eventBus *service.EventBus
	queue    Queue
}

func NewSSEHandler(eventBus *service.EventBus, queue Queue) *SSEHandler {
	return &SSEHandler{
		eventBus: eventBus,
		queue:    queue,
	}
}

// sseWrite writes an SSE event, handling multi-line data correctly.
func sseWrite(w http.ResponseWriter, eventName string, data string) {
	_, _ = fmt.Fprintf(w, "event: %s\n", eventName)
	for _, line := range strings.Split(data, "\n") {
		_, _ = fmt.Fprintf(w, "data: %s\n", line)
	}
	_, _ = fmt.Fprint(w, "\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// sendKeepAlive writes an SSE comment to keep the connection active.
func sendKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *SSEHandler) sendStatus(w http.ResponseWriter, info *service.ProcessingInfo) {
	payload, err := json.Marshal(info)
	if err != nil {
		return
	}
	sseWrite(w, "status", string(payload))
}

func terminal(status domain.ProcessingStatus) bool {
	return status == domain.ProcessingCompleted || status == domain.ProcessingFailed
}

// Events streams processing status updates for one media item until the item
// reaches a terminal state or the client disconnects.
func (h *SSEHandler) Events() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		info, err := h.queue.Info(id)
		if err != nil {
			http.Error(w, "media not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		// If already terminal, send the final state and wait for client close
		if terminal(info.Status) {
			h.sendStatus(w, info)
			<-r.Context().Done()
			return
		}

		h.sendStatus(w, info)

		ch := h.eventBus.Subscribe(id)
		defer h.eventBus.Unsubscribe(id, ch)

		ctx := r.Context()
		keepAlive := time.NewTicker(15 * time.Second)
		defer keepAlive.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepAlive.C:
				sendKeepAlive(w)
			case event, ok := <-ch:
				if !ok {
					return
				}
				// Re-fetch to send the full composite state
				info, err := h.queue.Info(id)
				if err != nil {
					return
				}
				h.sendStatus(w, info)

				// Let client close the connection once terminal
				if terminal(domain.ProcessingStatus(event.Status)) {
					<-ctx.Done()
					return
				}
			}
		}
	}
}
