package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/envio-core/internal/audit"
	"github.com/nerrad567/envio-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/envio-core/internal/item"
)

// WebSocket channels for item events.
const (
	ChannelItemCreated  = "item.created"
	ChannelItemReplaced = "item.replaced"
	ChannelItemUpdated  = "item.updated"
	ChannelItemDeleted  = "item.deleted"
)

// itemEvent names one kind of item mutation on every outlet.
type itemEvent struct {
	name        string // MQTT topic suffix and InfluxDB action tag
	channel     string // WebSocket channel
	auditAction string
}

var (
	eventCreated  = itemEvent{name: "created", channel: ChannelItemCreated, auditAction: audit.ActionCreate}
	eventReplaced = itemEvent{name: "replaced", channel: ChannelItemReplaced, auditAction: audit.ActionReplace}
	eventUpdated  = itemEvent{name: "updated", channel: ChannelItemUpdated, auditAction: audit.ActionUpdate}
	eventDeleted  = itemEvent{name: "deleted", channel: ChannelItemDeleted, auditAction: audit.ActionDelete}
)

// mutate runs fn under the mutation lock and numbers the change it made.
// Sequence numbers therefore follow store order. Fan-out happens after the
// lock is released, so delivery order across outlets is best-effort and
// consumers that need strict order sort on the sequence number.
func (s *Server) mutate(fn func() error) (uint64, error) {
	s.mutateMu.Lock()
	defer s.mutateMu.Unlock()

	if err := fn(); err != nil {
		return 0, err
	}
	s.eventSeq++
	return s.eventSeq, nil
}

// publishItemEvent logs a successful mutation and fans it out to WebSocket
// clients, the MQTT bus, InfluxDB and the audit trail. Failures are logged
// and never change the HTTP response.
func (s *Server) publishItemEvent(r *http.Request, ev itemEvent, seq uint64, it item.Item) {
	requestID := requestIDFrom(r.Context())
	deleted := ev == eventDeleted

	s.logger.Info("item "+ev.name, "id", it.ID, "seq", seq, "request_id", requestID)

	var payload any = it
	details := map[string]any{"seq": seq, "ganancia": it.Ganancia, "peso": it.Peso}
	if deleted {
		payload = map[string]int64{"id": it.ID}
		details = map[string]any{"seq": seq}
	}

	s.hub.Broadcast(ev.channel, seq, payload)

	if s.mqtt != nil {
		err := s.mqtt.PublishItemEvent(mqtt.ItemEvent{
			Action:    ev.name,
			ItemID:    it.ID,
			Seq:       seq,
			Item:      payload,
			RequestID: requestID,
			Timestamp: time.Now().UTC(),
		})
		if err != nil {
			s.logger.Warn("item event publish failed",
				"id", it.ID,
				"action", ev.name,
				"error", err,
			)
		}
	}

	if s.telemetry != nil {
		s.telemetry.WriteItemEvent(it.ID, ev.name)
		if !deleted {
			s.telemetry.WriteItemMetric(it.ID, it.Ganancia, it.Peso)
		}
	}

	s.auditLog(ev.auditAction, strconv.FormatInt(it.ID, 10), requestID, details)
}
