package entity

// Conversation is a two-party thread. The participant pair is stored sorted
// and is unique, so a pair resolves to exactly one row.
type Conversation struct {
	Id            string `json:"id" gorm:"column:id;primaryKey"`
	ParticipantA  string `json:"participant_a" gorm:"column:participant_a;uniqueIndex:uk_participants,priority:1"`
	ParticipantB  string `json:"participant_b" gorm:"column:participant_b;uniqueIndex:uk_participants,priority:2;index"`
	LastMessageAt int64  `json:"last_message_at" gorm:"column:last_message_at"`
	CreatedAt     int64  `json:"created_at" gorm:"column:created_at;autoCreateTime:milli"`
	UpdatedAt     int64  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime:milli"`
}

// TableName returns the table name for Conversation
func (Conversation) TableName() string {
	return "conversations"
}

// HasParticipant reports whether userId is one of the two parties
func (c *Conversation) HasParticipant(userId string) bool {
	return c.ParticipantA == userId || c.ParticipantB == userId
}

// Counterpart returns the other party as seen by userId
func (c *Conversation) Counterpart(userId string) string {
	if c.ParticipantA == userId {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// ConversationInfo represents conversation info for API response
type ConversationInfo struct {
	ConversationId string `json:"conversation_id"`
	CounterpartId  string `json:"counterpart_id"`
	CreatedAt      int64  `json:"created_at"`
}

// ToConversationInfo converts Conversation to the viewer's ConversationInfo
func (c *Conversation) ToConversationInfo(viewerId string) *ConversationInfo {
	return &ConversationInfo{
		ConversationId: c.Id,
		CounterpartId:  c.Counterpart(viewerId),
		CreatedAt:      c.CreatedAt,
	}
}

// ChatPreview is the derived per-viewer summary row of a conversation.
// UnreadIds lists the newest unread message ids, newest first; UnreadCount
// may exceed its length.
type ChatPreview struct {
	ConversationId string  `json:"conversation_id"`
	CounterpartId  string  `json:"counterpart_id"`
	LastMessageId  int64   `json:"last_message_id"`
	LastSenderId   string  `json:"last_sender_id"`
	LastMessage    string  `json:"last_message"`
	UnreadCount    int64   `json:"unread_count"`
	UnreadIds      []int64 `json:"unread_ids"`
	LastActivityAt int64   `json:"last_activity_at"`
}

// UnreadCount is a per-conversation unread aggregate row
type UnreadCount struct {
	ConversationId string `gorm:"column:conversation_id"`
	Count          int64  `gorm:"column:cnt"`
}

// UnreadSummary is the unread state of one conversation for one receiver
type UnreadSummary struct {
	Count     int64
	RecentIds []int64
}
