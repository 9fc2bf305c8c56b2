// Package bus wraps an embedded NATS server used as the in-process event
// fabric: domain events for the WebSocket stream, outbound chat commands
// and group notices for the bridge process, and inbound bot replies coming
// back the other way.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/svarog-dev/warden/internal/domain"
)

// Subjects used on the bus
const (
	SubjectEventsPrefix = "warden.events."
	SubjectEventsAll    = "warden.events.>"
	SubjectChatOutbound = "warden.chat.outbound"
	SubjectChatInbound  = "warden.chat.inbound"
	SubjectGroupNotice  = "warden.chat.notice"
)

// Bus owns the embedded NATS server and its in-process client connection
type Bus struct {
	srv *server.Server
	nc  *nats.Conn
}

// New starts an embedded NATS server that accepts only in-process
// connections and connects a client to it.
func New() (*Bus, error) {
	srv, err := server.NewServer(&server.Options{
		ServerName: "warden",
		DontListen: true,
		NoSigs:     true,
		NoLog:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedded nats server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded nats server did not become ready")
	}

	nc, err := nats.Connect("", nats.InProcessServer(srv))
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("connecting to embedded nats server: %w", err)
	}

	return &Bus{srv: srv, nc: nc}, nil
}

// Close drains the client and shuts the embedded server down
func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Drain()
	}
	if b.srv != nil {
		b.srv.Shutdown()
		b.srv.WaitForShutdown()
	}
}

// PublishEvent publishes a domain event on its typed subject
func (b *Bus) PublishEvent(evt domain.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	return b.nc.Publish(SubjectEventsPrefix+evt.Type, data)
}

// SubscribeEventsRaw delivers the JSON bytes of every published event,
// suitable for direct WebSocket broadcast.
func (b *Bus) SubscribeEventsRaw(handler func(data []byte)) (*nats.Subscription, error) {
	return b.nc.Subscribe(SubjectEventsAll, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// PublishChatOutbound publishes one command text destined for an external
// actor; the chat bridge subscribes and actually delivers it.
func (b *Bus) PublishChatOutbound(actor domain.Actor, text string) error {
	data, err := json.Marshal(domain.ChatMessageEvent{Actor: actor, Text: text})
	if err != nil {
		return fmt.Errorf("marshaling chat message: %w", err)
	}
	if err := b.nc.Publish(SubjectChatOutbound, data); err != nil {
		return err
	}
	return b.PublishEvent(domain.Event{
		Type:      domain.EventChatOutbound,
		Timestamp: time.Now().UTC(),
		Data:      domain.ChatMessageEvent{Actor: actor, Text: text},
	})
}

// SubscribeChatInbound delivers bot replies published by the chat bridge.
func (b *Bus) SubscribeChatInbound(handler func(actor domain.Actor, text string)) (*nats.Subscription, error) {
	return b.nc.Subscribe(SubjectChatInbound, func(msg *nats.Msg) {
		var m domain.ChatMessageEvent
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			return
		}
		handler(m.Actor, m.Text)
	})
}

// NotifyGroup publishes a human-readable report for a chat group.
func (b *Bus) NotifyGroup(groupID int64, text string) error {
	data, err := json.Marshal(domain.GroupNoticeEvent{GroupID: groupID, Text: text})
	if err != nil {
		return fmt.Errorf("marshaling group notice: %w", err)
	}
	if err := b.nc.Publish(SubjectGroupNotice, data); err != nil {
		return err
	}
	return b.PublishEvent(domain.Event{
		Type:      domain.EventGroupNotice,
		Timestamp: time.Now().UTC(),
		Data:      domain.GroupNoticeEvent{GroupID: groupID, Text: text},
	})
}
