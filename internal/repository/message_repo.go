package repository

import (
	"context"
	"errors"
	"slices"

	"github.com/mbeoliero/jobchat/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepo is the repository for message operations
type MessageRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewMessageRepo creates a new MessageRepo
func NewMessageRepo(db *gorm.DB, rdb *redis.Client) *MessageRepo {
	return &MessageRepo{db: db, rdb: rdb}
}

// Create creates a new message
func (r *MessageRepo) Create(ctx context.Context, tx *gorm.DB, msg *entity.Message) error {
	if tx == nil {
		tx = r.db
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = entity.NowUnixMilli()
	}
	return tx.WithContext(ctx).Create(msg).Error
}

// GetByClientMsgId gets message by sender_id and client_msg_id (for idempotency check)
func (r *MessageRepo) GetByClientMsgId(ctx context.Context, senderId, clientMsgId string) (*entity.Message, error) {
	var msg entity.Message
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND client_msg_id = ?", senderId, clientMsgId).
		First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// ListBefore returns up to pageSize messages of a conversation older than
// beforeId, or the newest ones when beforeId is 0. Messages are ordered oldest
// to newest; hasMore reports whether older ones remain.
func (r *MessageRepo) ListBefore(ctx context.Context, conversationId string, beforeId int64, pageSize int) ([]*entity.Message, bool, error) {
	q := r.db.WithContext(ctx).Where("conversation_id = ?", conversationId)
	if beforeId > 0 {
		q = q.Where("id < ?", beforeId)
	}

	var messages []*entity.Message
	if err := q.Order("id DESC").Limit(pageSize + 1).Find(&messages).Error; err != nil {
		return nil, false, err
	}

	hasMore := len(messages) > pageSize
	if hasMore {
		messages = messages[:pageSize]
	}
	slices.Reverse(messages)
	return messages, hasMore, nil
}

// MarkRead flips the read flag of the given messages addressed to receiverId.
// It returns the ids that actually changed; ids already read, unknown, or
// addressed to someone else are skipped.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationId, receiverId string, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var flipped []int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&entity.Message{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("conversation_id = ? AND receiver_id = ? AND is_read = ? AND id IN ?", conversationId, receiverId, false, ids).
			Order("id ASC").
			Pluck("id", &flipped).Error; err != nil {
			return err
		}
		if len(flipped) == 0 {
			return nil
		}
		return tx.Model(&entity.Message{}).
			Where("id IN ?", flipped).
			Updates(map[string]interface{}{
				"is_read": true,
				"read_at": entity.NowUnixMilli(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return flipped, nil
}

// PreviewState reads, in one transaction, the newest message of each
// conversation and the unread summary of receiverId, so the two agree on
// which messages exist. At most perConversation unread ids are listed per
// conversation, newest first.
func (r *MessageRepo) PreviewState(ctx context.Context, receiverId string, conversationIds []string, perConversation int) (map[string]*entity.Message, map[string]*entity.UnreadSummary, error) {
	var (
		latest map[string]*entity.Message
		unread map[string]*entity.UnreadSummary
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if latest, err = latestIn(tx, conversationIds); err != nil {
			return err
		}
		unread, err = unreadIn(tx, receiverId, perConversation)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return latest, unread, nil
}

func unreadIn(tx *gorm.DB, receiverId string, perConversation int) (map[string]*entity.UnreadSummary, error) {
	var counts []entity.UnreadCount
	err := tx.Model(&entity.Message{}).
		Select("conversation_id, COUNT(*) AS cnt").
		Where("receiver_id = ? AND is_read = ?", receiverId, false).
		Group("conversation_id").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]*entity.UnreadSummary, len(counts))
	var scan int
	for _, c := range counts {
		out[c.ConversationId] = &entity.UnreadSummary{Count: c.Count}
		scan += int(min(c.Count, int64(perConversation)))
	}
	if scan == 0 {
		return out, nil
	}

	// rows skipped by the limit are older than every row returned, so each
	// conversation keeps its newest ids
	var rows []struct {
		Id             int64
		ConversationId string
	}
	err = tx.Model(&entity.Message{}).
		Select("id, conversation_id").
		Where("receiver_id = ? AND is_read = ?", receiverId, false).
		Order("id DESC").
		Limit(scan).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		sum, ok := out[row.ConversationId]
		if !ok || len(sum.RecentIds) >= perConversation {
			continue
		}
		sum.RecentIds = append(sum.RecentIds, row.Id)
	}
	return out, nil
}

func latestIn(tx *gorm.DB, conversationIds []string) (map[string]*entity.Message, error) {
	latest := make(map[string]*entity.Message, len(conversationIds))
	if len(conversationIds) == 0 {
		return latest, nil
	}

	sub := tx.Model(&entity.Message{}).
		Select("MAX(id)").
		Where("conversation_id IN ?", conversationIds).
		Group("conversation_id")

	var messages []*entity.Message
	if err := tx.Where("id IN (?)", sub).Find(&messages).Error; err != nil {
		return nil, err
	}
	for _, m := range messages {
		latest[m.ConversationId] = m
	}
	return latest, nil
}
