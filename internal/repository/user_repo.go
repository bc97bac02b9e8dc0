package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mbeoliero/jobchat/internal/entity"
	"github.com/mbeoliero/jobchat/pkg/constant"
)

// knownUserTTL bounds how long a positive existence check is served from redis.
// Users are never deleted, so only positive answers are cached.
const knownUserTTL = 10 * time.Minute

type UserRepo struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewUserRepo(db *gorm.DB, rdb *redis.Client) *UserRepo {
	return &UserRepo{db: db, rdb: rdb}
}

func (r *UserRepo) Create(ctx context.Context, user *entity.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return err
	}
	r.rememberKnown(ctx, user.Id)
	return nil
}

// EnsureExists inserts a placeholder row for a portal actor seen through an
// external token. An existing row is left untouched.
func (r *UserRepo) EnsureExists(ctx context.Context, user *entity.User) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(user).Error
	if err != nil {
		return err
	}
	r.rememberKnown(ctx, user.Id)
	return nil
}

func (r *UserRepo) GetById(ctx context.Context, id string) (*entity.User, error) {
	var user entity.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByIds returns the stored users among ids, in no particular order
func (r *UserRepo) GetByIds(ctx context.Context, ids []string) ([]*entity.User, error) {
	users := make([]*entity.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// Exists is on the hot path of conversation resolve and notification publish.
func (r *UserRepo) Exists(ctx context.Context, id string) (bool, error) {
	if r.isKnown(ctx, id) {
		return true, nil
	}
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.User{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, err
	}
	if count > 0 {
		r.rememberKnown(ctx, id)
	}
	return count > 0, nil
}

func (r *UserRepo) knownKey(id string) string {
	return fmt.Sprintf(constant.RedisKeyUserKnown(), id)
}

func (r *UserRepo) isKnown(ctx context.Context, id string) bool {
	if r.rdb == nil {
		return false
	}
	n, err := r.rdb.Exists(ctx, r.knownKey(id)).Result()
	if err != nil {
		log.CtxDebug(ctx, "known user lookup failed: user_id=%s, error=%v", id, err)
		return false
	}
	return n > 0
}

func (r *UserRepo) rememberKnown(ctx context.Context, id string) {
	if r.rdb == nil {
		return
	}
	if err := r.rdb.Set(ctx, r.knownKey(id), 1, knownUserTTL).Err(); err != nil {
		log.CtxDebug(ctx, "remember user failed: user_id=%s, error=%v", id, err)
	}
}
