package repository

import (
	"context"

	"github.com/mbeoliero/jobchat/internal/entity"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// NotificationRepo is the repository for the system notification feed
type NotificationRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewNotificationRepo creates a new NotificationRepo
func NewNotificationRepo(db *gorm.DB, rdb *redis.Client) *NotificationRepo {
	return &NotificationRepo{db: db, rdb: rdb}
}

// Create creates a new notification
func (r *NotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	if n.CreatedAt == 0 {
		n.CreatedAt = entity.NowUnixMilli()
	}
	return r.db.WithContext(ctx).Create(n).Error
}

// List returns one page of a user's feed, newest first
func (r *NotificationRepo) List(ctx context.Context, userId string, page, pageSize int) ([]*entity.Notification, bool, error) {
	if page < 1 {
		page = 1
	}

	var items []*entity.Notification
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize + 1).
		Find(&items).Error
	if err != nil {
		return nil, false, err
	}

	hasMore := len(items) > pageSize
	if hasMore {
		items = items[:pageSize]
	}
	return items, hasMore, nil
}

// UnreadCount counts the user's unread notifications
func (r *NotificationRepo) UnreadCount(ctx context.Context, userId string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userId).
		Count(&count).Error
	return count, err
}

// MarkAllRead marks every unread notification created at or before cutoff
// as read in a single statement. It returns the number of rows changed.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userId string, cutoff, readAt int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&entity.Notification{}).
		Where("user_id = ? AND read_at IS NULL AND created_at <= ?", userId, cutoff).
		Update("read_at", readAt)
	return result.RowsAffected, result.Error
}
