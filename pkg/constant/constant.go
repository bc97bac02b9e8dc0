package constant

import (
	"fmt"
	"strings"
)

// Portal roles
const (
	RoleJobseeker = "jobseeker"
	RoleEmployer  = "employer"
	RoleAdmin     = "admin"
)

// Notification classification tags
const (
	NotificationJobMatch           = "job_match"
	NotificationInterviewScheduled = "interview_scheduled"
	NotificationApplicationUpdate  = "application_update"
	NotificationSystem             = "system"
)

// IsValidNotificationType reports whether t is a known classification tag
func IsValidNotificationType(t string) bool {
	switch t {
	case NotificationJobMatch, NotificationInterviewScheduled, NotificationApplicationUpdate, NotificationSystem:
		return true
	default:
		return false
	}
}

// Online status
const (
	StatusOffline = 0
	StatusOnline  = 1
)

// Platform Ids
const (
	PlatformIdUnknown = 0
	PlatformIdIOS     = 1
	PlatformIdAndroid = 2
	PlatformIdWindows = 3
	PlatformIdMacOS   = 4
	PlatformIdWeb     = 5
)

// PlatformIdToName converts platform Id to name
func PlatformIdToName(platformId int) string {
	switch platformId {
	case PlatformIdIOS:
		return "iOS"
	case PlatformIdAndroid:
		return "Android"
	case PlatformIdWindows:
		return "Windows"
	case PlatformIdMacOS:
		return "macOS"
	case PlatformIdWeb:
		return "Web"
	default:
		return "Unknown"
	}
}

// Pagination and content limits
const (
	DefaultPageSize   = 20
	MaxPageSize       = 100
	MaxContentLength  = 4000
	MaxMarkReadBatch  = 500
	PreviewSnippetLen = 80
	// newest unread ids listed per preview row; older unread are only counted
	PreviewUnreadIds = 100
)

// Push channel topic naming. These names are part of the client contract.
const (
	topicChatPrefix         = "chat."
	topicUserPrefix         = "user."
	topicUserMessagesSuffix = ".messages"
	topicUserNotifySuffix   = ".notifications"
)

// ChatTopic returns the per-conversation topic: chat.<conversation_id>
func ChatTopic(conversationId string) string {
	return topicChatPrefix + conversationId
}

// UserMessagesTopic returns the per-user message topic: user.<user_id>.messages
func UserMessagesTopic(userId string) string {
	return topicUserPrefix + userId + topicUserMessagesSuffix
}

// UserNotificationsTopic returns the per-user notification topic: user.<user_id>.notifications
func UserNotificationsTopic(userId string) string {
	return topicUserPrefix + userId + topicUserNotifySuffix
}

// TopicKind classifies a topic name
type TopicKind int

const (
	TopicInvalid TopicKind = iota
	TopicChat
	TopicUserMessages
	TopicUserNotifications
)

// ParseTopic splits a topic into its kind and the id it is scoped to
func ParseTopic(topic string) (TopicKind, string, error) {
	switch {
	case strings.HasPrefix(topic, topicChatPrefix):
		id := strings.TrimPrefix(topic, topicChatPrefix)
		if id == "" {
			break
		}
		return TopicChat, id, nil
	case strings.HasPrefix(topic, topicUserPrefix):
		rest := strings.TrimPrefix(topic, topicUserPrefix)
		if id, ok := strings.CutSuffix(rest, topicUserMessagesSuffix); ok && id != "" {
			return TopicUserMessages, id, nil
		}
		if id, ok := strings.CutSuffix(rest, topicUserNotifySuffix); ok && id != "" {
			return TopicUserNotifications, id, nil
		}
	}
	return TopicInvalid, "", fmt.Errorf("invalid topic: %q", topic)
}

// Redis key patterns (without prefix, use RedisKey() to get full key)
const (
	redisKeyToken      = "token:%s:%d"     // token:{user_id}:{platform_id}
	redisKeyOnline     = "online:%s"       // online:{user_id}
	redisChannelEvents = "events"          // pub/sub channel for push fan-out
	redisKeyConvPair   = "conv:pair:%s:%s" // conv:pair:{user_a}:{user_b}
	redisKeyUserKnown  = "user:known:%s"   // user:known:{user_id}
)

// redisKeyPrefix is the global prefix for all Redis keys
var redisKeyPrefix = "jobchat:"

// InitRedisKeyPrefix initializes the Redis key prefix from config
func InitRedisKeyPrefix(prefix string) {
	if prefix != "" {
		redisKeyPrefix = prefix
	}
}

// GetRedisKeyPrefix returns the current Redis key prefix
func GetRedisKeyPrefix() string {
	return redisKeyPrefix
}

// Redis key getters with prefix
func RedisKeyToken() string      { return redisKeyPrefix + redisKeyToken }
func RedisKeyOnline() string     { return redisKeyPrefix + redisKeyOnline }
func RedisChannelEvents() string { return redisKeyPrefix + redisChannelEvents }
func RedisKeyConvPair() string   { return redisKeyPrefix + redisKeyConvPair }
func RedisKeyUserKnown() string  { return redisKeyPrefix + redisKeyUserKnown }
