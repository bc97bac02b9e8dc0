package entity

import (
	"unicode/utf8"

	"github.com/mbeoliero/jobchat/pkg/protocol"
)

// Message represents a chat message
type Message struct {
	Id             int64  `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	ConversationId string `json:"conversation_id" gorm:"column:conversation_id;index:idx_conv_id,priority:1"`
	ClientMsgId    string `json:"client_msg_id" gorm:"column:client_msg_id;uniqueIndex:uk_sender_client_msg,priority:2"`
	SenderId       string `json:"sender_id" gorm:"column:sender_id;uniqueIndex:uk_sender_client_msg,priority:1"`
	ReceiverId     string `json:"receiver_id" gorm:"column:receiver_id;index:idx_receiver_read,priority:1"`
	Content        string `json:"content" gorm:"column:content;type:text"`
	IsRead         bool   `json:"is_read" gorm:"column:is_read;index:idx_receiver_read,priority:2"`
	ReadAt         int64  `json:"read_at" gorm:"column:read_at"`
	CreatedAt      int64  `json:"created_at" gorm:"column:created_at"`
}

// TableName returns the table name for Message
func (Message) TableName() string {
	return "messages"
}

// ToMessageData converts Message to its wire shape
func (m *Message) ToMessageData() *protocol.MessageData {
	return &protocol.MessageData{
		Id:             m.Id,
		ConversationId: m.ConversationId,
		ClientMsgId:    m.ClientMsgId,
		SenderId:       m.SenderId,
		ReceiverId:     m.ReceiverId,
		Content:        m.Content,
		IsRead:         m.IsRead,
		CreatedAt:      m.CreatedAt,
	}
}

// Snippet returns at most n runes of the content
func (m *Message) Snippet(n int) string {
	if utf8.RuneCountInString(m.Content) <= n {
		return m.Content
	}
	return string([]rune(m.Content)[:n])
}
