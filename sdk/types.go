package sdk

import "encoding/json"

// Response represents the standard API response
type Response struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UserInfo represents public user info
type UserInfo struct {
	Id       string `json:"id"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
	Role     string `json:"role"`
}

// Message is a chat message between two participants
type Message struct {
	Id             int64  `json:"id"`
	ConversationId string `json:"conversation_id"`
	ClientMsgId    string `json:"client_msg_id"`
	SenderId       string `json:"sender_id"`
	ReceiverId     string `json:"receiver_id"`
	Content        string `json:"content"`
	IsRead         bool   `json:"is_read"`
	CreatedAt      int64  `json:"created_at"`
}

// ConversationInfo identifies a conversation from the viewer's side
type ConversationInfo struct {
	ConversationId string `json:"conversation_id"`
	CounterpartId  string `json:"counterpart_id"`
	CreatedAt      int64  `json:"created_at"`
}

// Preview is a per-conversation summary row for the viewer
type Preview struct {
	ConversationId string `json:"conversation_id"`
	CounterpartId  string `json:"counterpart_id"`
	LastMessageId  int64  `json:"last_message_id"`
	LastSenderId   string `json:"last_sender_id"`
	LastMessage    string `json:"last_message"`
	UnreadCount    int64  `json:"unread_count"`
	LastActivityAt int64  `json:"last_activity_at"`
	// newest unread ids as of the fetch; UnreadCount may exceed its length
	UnreadIds []int64 `json:"unread_ids,omitempty"`
}

// Notification is a system notification. ReadAt is nil while unread.
type Notification struct {
	Id        int64           `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ReadAt    *int64          `json:"read_at"`
	CreatedAt int64           `json:"created_at"`
}

// IsRead reports whether the notification has been read
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// ===== Request types =====

// RegisterRequest represents user registration request
type RegisterRequest struct {
	UserId   string `json:"user_id"`
	Nickname string `json:"nickname"`
	Password string `json:"password"`
	Avatar   string `json:"avatar,omitempty"`
}

// LoginRequest represents user login request
type LoginRequest struct {
	UserId     string `json:"user_id"`
	Password   string `json:"password"`
	PlatformId int    `json:"platform_id"`
}

// LoginResponse represents user login response
type LoginResponse struct {
	Token    string    `json:"token"`
	UserInfo *UserInfo `json:"user_info"`
}

// GetUsersInfoRequest represents batch get users info request
type GetUsersInfoRequest struct {
	UserIds []string `json:"user_ids"`
}

// ResolveConversationRequest asks for the conversation with a counterpart
type ResolveConversationRequest struct {
	CounterpartId string `json:"counterpart_id"`
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ConversationId string `json:"conversation_id"`
	ClientMsgId    string `json:"client_msg_id"`
	Content        string `json:"content"`
}

// MarkReadRequest represents mark read request
type MarkReadRequest struct {
	ConversationId string  `json:"conversation_id"`
	MessageIds     []int64 `json:"message_ids"`
}

// CreateNotificationRequest publishes a notification to a user
type CreateNotificationRequest struct {
	UserId  string          `json:"user_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarkAllReadRequest bounds mark-all-read by creation time in unix millis
type MarkAllReadRequest struct {
	Before int64 `json:"before,omitempty"`
}

// ===== Response types =====

// MessagePage is one page of history, oldest to newest
type MessagePage struct {
	Messages []*Message `json:"messages"`
	HasMore  bool       `json:"has_more"`
}

// MarkReadResponse lists the ids the call transitioned to read
type MarkReadResponse struct {
	MessageIds []int64 `json:"message_ids"`
}

// PreviewList wraps the previews endpoint payload
type PreviewList struct {
	Previews []*Preview `json:"previews"`
}

// NotificationPage is one page of the feed, newest first
type NotificationPage struct {
	Notifications []*Notification `json:"notifications"`
	HasMore       bool            `json:"has_more"`
	UnreadCount   int64           `json:"unread_count"`
}

// MarkAllReadResult reports the outcome of mark-all-read
type MarkAllReadResult struct {
	Updated int64 `json:"updated"`
	Cutoff  int64 `json:"cutoff"`
	ReadAt  int64 `json:"read_at"`
}

type userList struct {
	Users []*UserInfo `json:"users"`
}
