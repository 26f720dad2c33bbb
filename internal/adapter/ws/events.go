package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// BroadcastEvent marshals a typed event and broadcasts it, tagged with the
// run ID carried by ctx. With AG-UI enabled the matching AG-UI event follows.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal ws event payload", "type", eventType, "error", err)
		return
	}

	runID := runIDOf(ctx)
	h.Broadcast(ctx, Message{
		Type:    eventType,
		RunID:   runID,
		Payload: json.RawMessage(data),
	})

	if !h.agui {
		return
	}
	for _, ev := range toAGUI(payload) {
		data, err := json.Marshal(ev.payload)
		if err != nil {
			continue
		}
		h.Broadcast(ctx, Message{Type: ev.typ, RunID: runID, Payload: data})
	}
}
