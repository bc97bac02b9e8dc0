// Package protocol holds the push channel frames shared by the gateway and the sdk.
package protocol

import "encoding/json"

// WSRequest represents a WebSocket request message
type WSRequest struct {
	ReqIdentifier int32  `json:"req_identifier"` // Request type
	MsgIncr       string `json:"msg_incr"`       // Client message counter/trace Id
	OperationId   string `json:"operation_id"`   // Operation Id
	SendId        string `json:"send_id"`        // Sender user Id
	Data          []byte `json:"data"`           // Business data
}

// WSResponse represents a WebSocket response message
type WSResponse struct {
	ReqIdentifier int32  `json:"req_identifier"` // Request type (echo back)
	MsgIncr       string `json:"msg_incr"`       // Message counter (echo back)
	OperationId   string `json:"operation_id"`   // Operation Id (echo back)
	ErrCode       int    `json:"err_code"`       // Error code, 0 = success
	ErrMsg        string `json:"err_msg"`        // Error message
	Data          []byte `json:"data"`           // Response data
}

// TopicReq is the payload of WSSubscribe and WSUnsubscribe
type TopicReq struct {
	Topic string `json:"topic"`
}

// MessageData is a full message record as pushed to clients
type MessageData struct {
	Id             int64  `json:"id"`
	ConversationId string `json:"conversation_id"`
	ClientMsgId    string `json:"client_msg_id"`
	SenderId       string `json:"sender_id"`
	ReceiverId     string `json:"receiver_id"`
	Content        string `json:"content"`
	IsRead         bool   `json:"is_read"`
	CreatedAt      int64  `json:"created_at"`
}

// ReadReceiptData announces that acting_user_id has read message_ids
type ReadReceiptData struct {
	ConversationId string  `json:"conversation_id"`
	MessageIds     []int64 `json:"message_ids"`
	ActingUserId   string  `json:"acting_user_id"`
}

// NotificationData is a system notification as pushed to clients
type NotificationData struct {
	Id        int64           `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ReadAt    *int64          `json:"read_at"`
	CreatedAt int64           `json:"created_at"`
}

// PushEvent is the payload of WSPushEvent. Exactly one of Message, Receipt
// or Notification is set, matching Kind.
type PushEvent struct {
	Topic        string            `json:"topic"`
	Kind         string            `json:"kind"`
	Message      *MessageData      `json:"message,omitempty"`
	Receipt      *ReadReceiptData  `json:"receipt,omitempty"`
	Notification *NotificationData `json:"notification,omitempty"`
}

// Encode encodes data to JSON bytes
func Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to struct
func Decode(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
