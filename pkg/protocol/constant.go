package protocol

// Request identifiers sent by clients
const (
	WSSubscribe   = 1001 // Subscribe to a topic
	WSUnsubscribe = 1002 // Unsubscribe from a topic
)

// Response identifiers pushed by the server
const (
	WSPushEvent     = 2001 // Server push event
	WSKickOnlineMsg = 2002 // Kick user offline
	WSDataError     = 3001 // Data error
)

// Event kinds carried by WSPushEvent
const (
	EventNewMessage      = "message.new"
	EventReadReceipt     = "message.read"
	EventNewNotification = "notification.new"
)

// Query parameter keys used during the websocket handshake
const (
	QueryToken       = "token"
	QuerySendId      = "send_id"
	QueryPlatformId  = "platform_id"
	QueryOperationId = "operation_id"
	QuerySDKType     = "sdk_type"
)

// SDK types
const (
	SDKTypeGo = "go"
	SDKTypeJS = "js"
)
