package service

import (
	"context"

	"github.com/mbeoliero/jobchat/internal/entity"
	"github.com/mbeoliero/jobchat/pkg/constant"
	"github.com/mbeoliero/jobchat/pkg/protocol"
	"gorm.io/gorm"
)

// The services depend on these narrow views of the repositories so that the
// business rules can be exercised without a database.

type userStore interface {
	Create(ctx context.Context, user *entity.User) error
	EnsureExists(ctx context.Context, user *entity.User) error
	GetById(ctx context.Context, id string) (*entity.User, error)
	GetByIds(ctx context.Context, ids []string) ([]*entity.User, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type conversationStore interface {
	GetById(ctx context.Context, id string) (*entity.Conversation, error)
	GetOrCreate(ctx context.Context, userA, userB string) (*entity.Conversation, bool, error)
	ListByUser(ctx context.Context, userId string) ([]*entity.Conversation, error)
	TouchLastMessage(ctx context.Context, tx *gorm.DB, id string, at int64) error
}

type messageStore interface {
	Create(ctx context.Context, tx *gorm.DB, msg *entity.Message) error
	GetByClientMsgId(ctx context.Context, senderId, clientMsgId string) (*entity.Message, error)
	ListBefore(ctx context.Context, conversationId string, beforeId int64, pageSize int) ([]*entity.Message, bool, error)
	MarkRead(ctx context.Context, conversationId, receiverId string, ids []int64) ([]int64, error)
	PreviewState(ctx context.Context, receiverId string, conversationIds []string, perConversation int) (map[string]*entity.Message, map[string]*entity.UnreadSummary, error)
}

type notificationStore interface {
	Create(ctx context.Context, n *entity.Notification) error
	List(ctx context.Context, userId string, page, pageSize int) ([]*entity.Notification, bool, error)
	UnreadCount(ctx context.Context, userId string) (int64, error)
	MarkAllRead(ctx context.Context, userId string, cutoff, readAt int64) (int64, error)
}

// txRunner runs fn inside a database transaction
type txRunner func(ctx context.Context, fn func(tx *gorm.DB) error) error

// EventPublisher fans a push event out to the subscribers of its topic
type EventPublisher interface {
	Publish(ctx context.Context, event *protocol.PushEvent)
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = constant.DefaultPageSize
	}
	if pageSize > constant.MaxPageSize {
		pageSize = constant.MaxPageSize
	}
	return page, pageSize
}
