package chatsync

import (
	"github.com/mbeoliero/jobchat/pkg/protocol"
	"github.com/mbeoliero/jobchat/sdk"
)

// EventKind names what an Event carries
type EventKind string

const (
	EventNewMessage      EventKind = protocol.EventNewMessage
	EventReadReceipt     EventKind = protocol.EventReadReceipt
	EventNewNotification EventKind = protocol.EventNewNotification
	// EventTransportDown is emitted when the push channel drops. Every
	// subscription is lost until EventTransportUp.
	EventTransportDown EventKind = "transport.down"
	// EventTransportUp is emitted after (re)connecting. Topics lists the
	// subscriptions that were restored.
	EventTransportUp EventKind = "transport.up"
	// EventKicked is emitted when the server revokes the session
	EventKicked EventKind = "transport.kicked"
)

// ReadReceipt announces that ActingUserId has read MessageIds
type ReadReceipt struct {
	ConversationId string
	MessageIds     []int64
	ActingUserId   string
}

// Event is one item of the inbound stream. Exactly one payload field is set
// for data events; transport events use Err and Topics.
type Event struct {
	Topic        string
	Kind         EventKind
	Message      *sdk.Message
	Receipt      *ReadReceipt
	Notification *sdk.Notification
	Topics       []string
	Err          error
}

// eventFromPush converts a wire event. It returns false for payloads that do
// not match their kind.
func eventFromPush(p *protocol.PushEvent) (Event, bool) {
	ev := Event{Topic: p.Topic, Kind: EventKind(p.Kind)}
	switch ev.Kind {
	case EventNewMessage:
		if p.Message == nil {
			return ev, false
		}
		m := p.Message
		ev.Message = &sdk.Message{
			Id:             m.Id,
			ConversationId: m.ConversationId,
			ClientMsgId:    m.ClientMsgId,
			SenderId:       m.SenderId,
			ReceiverId:     m.ReceiverId,
			Content:        m.Content,
			IsRead:         m.IsRead,
			CreatedAt:      m.CreatedAt,
		}
	case EventReadReceipt:
		if p.Receipt == nil {
			return ev, false
		}
		ev.Receipt = &ReadReceipt{
			ConversationId: p.Receipt.ConversationId,
			MessageIds:     append([]int64(nil), p.Receipt.MessageIds...),
			ActingUserId:   p.Receipt.ActingUserId,
		}
	case EventNewNotification:
		if p.Notification == nil {
			return ev, false
		}
		n := p.Notification
		ev.Notification = &sdk.Notification{
			Id:        n.Id,
			Type:      n.Type,
			Payload:   n.Payload,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		}
	default:
		return ev, false
	}
	return ev, true
}
