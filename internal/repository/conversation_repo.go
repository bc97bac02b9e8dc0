package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbeoliero/jobchat/internal/entity"
	"github.com/mbeoliero/jobchat/pkg/constant"
	"github.com/mbeoliero/jobchat/pkg/idgen"
	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const pairCacheTTL = 24 * time.Hour

// ConversationRepo is the repository for conversation operations
type ConversationRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewConversationRepo creates a new ConversationRepo
func NewConversationRepo(db *gorm.DB, rdb *redis.Client) *ConversationRepo {
	return &ConversationRepo{db: db, rdb: rdb}
}

// GetById gets a conversation by Id, returns nil if not found
func (r *ConversationRepo) GetById(ctx context.Context, id string) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// GetByPair gets the conversation between two users, returns nil if none exists
func (r *ConversationRepo) GetByPair(ctx context.Context, userA, userB string) (*entity.Conversation, error) {
	a, b := entity.SortParticipants(userA, userB)

	var conv entity.Conversation
	err := r.db.WithContext(ctx).
		Where("participant_a = ? AND participant_b = ?", a, b).
		First(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// GetOrCreate returns the conversation for the pair, creating it on first use.
// Concurrent callers race on the unique pair index; the loser re-reads the
// winner's row. created reports whether this call inserted it.
func (r *ConversationRepo) GetOrCreate(ctx context.Context, userA, userB string) (conv *entity.Conversation, created bool, err error) {
	a, b := entity.SortParticipants(userA, userB)

	if id := r.cachedPair(ctx, a, b); id != "" {
		conv, err = r.GetById(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if conv != nil {
			return conv, false, nil
		}
	}

	conv, err = r.GetByPair(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	if conv != nil {
		r.cachePair(ctx, conv)
		return conv, false, nil
	}

	id, err := idgen.NextID()
	if err != nil {
		return nil, false, err
	}
	now := entity.NowUnixMilli()
	candidate := &entity.Conversation{
		Id:            id,
		ParticipantA:  a,
		ParticipantB:  b,
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(candidate)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 1 {
		r.cachePair(ctx, candidate)
		return candidate, true, nil
	}

	// Lost the race, read the winner
	conv, err = r.GetByPair(ctx, a, b)
	if err != nil {
		return nil, false, err
	}
	if conv == nil {
		return nil, false, fmt.Errorf("conversation %s:%s vanished after conflict", a, b)
	}
	r.cachePair(ctx, conv)
	return conv, false, nil
}

// ListByUser lists the user's conversations, most recently active first
func (r *ConversationRepo) ListByUser(ctx context.Context, userId string) ([]*entity.Conversation, error) {
	var convs []*entity.Conversation
	err := r.db.WithContext(ctx).
		Where("participant_a = ? OR participant_b = ?", userId, userId).
		Order("last_message_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, err
	}
	return convs, nil
}

// TouchLastMessage bumps the activity timestamp of a conversation
func (r *ConversationRepo) TouchLastMessage(ctx context.Context, tx *gorm.DB, id string, at int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&entity.Conversation{}).
		Where("id = ? AND last_message_at < ?", id, at).
		Updates(map[string]interface{}{"last_message_at": at, "updated_at": entity.NowUnixMilli()}).Error
}

func (r *ConversationRepo) cachedPair(ctx context.Context, a, b string) string {
	if r.rdb == nil {
		return ""
	}
	id, err := r.rdb.Get(ctx, fmt.Sprintf(constant.RedisKeyConvPair(), a, b)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.CtxWarn(ctx, "read conversation pair cache failed: a=%s, b=%s, error=%v", a, b, err)
		}
		return ""
	}
	return id
}

func (r *ConversationRepo) cachePair(ctx context.Context, conv *entity.Conversation) {
	if r.rdb == nil {
		return
	}
	key := fmt.Sprintf(constant.RedisKeyConvPair(), conv.ParticipantA, conv.ParticipantB)
	if err := r.rdb.Set(ctx, key, conv.Id, pairCacheTTL).Err(); err != nil {
		log.CtxWarn(ctx, "write conversation pair cache failed: conversation_id=%s, error=%v", conv.Id, err)
	}
}
