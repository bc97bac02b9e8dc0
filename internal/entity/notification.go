package entity

import (
	"encoding/json"

	"github.com/mbeoliero/jobchat/pkg/protocol"
)

// Notification is a system notification in a user's feed
type Notification struct {
	Id        int64   `json:"id" gorm:"column:id;primaryKey;autoIncrement:false"`
	UserId    string  `json:"user_id" gorm:"column:user_id;index:idx_user_read,priority:1"`
	Type      string  `json:"type" gorm:"column:type"`
	Payload   *string `json:"payload" gorm:"column:payload;type:json"`
	ReadAt    *int64  `json:"read_at" gorm:"column:read_at;index:idx_user_read,priority:2"`
	CreatedAt int64   `json:"created_at" gorm:"column:created_at"`
}

// TableName returns the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// IsRead reports whether the notification has been read
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// ToNotificationData converts Notification to its wire shape
func (n *Notification) ToNotificationData() *protocol.NotificationData {
	data := &protocol.NotificationData{
		Id:        n.Id,
		Type:      n.Type,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
	if n.Payload != nil {
		data.Payload = json.RawMessage(*n.Payload)
	}
	return data
}
