package service

import (
	"context"
	"errors"

	"github.com/mbeoliero/kit/log"
	"gorm.io/gorm"

	"github.com/mbeoliero/jobchat/internal/entity"
	"github.com/mbeoliero/jobchat/internal/repository"
	"github.com/mbeoliero/jobchat/pkg/errcode"
	"github.com/mbeoliero/jobchat/pkg/identity"
)

// maxUserInfoBatch bounds one profile lookup, enough for a full preview page
const maxUserInfoBatch = 100

var errTooManyUserIds = errors.New("too many user ids")

// UserService serves chat profiles. Portal accounts that never logged in to
// chat have no row yet; they get a placeholder profile derived from their id.
type UserService struct {
	userRepo userStore
}

// NewUserService creates a new UserService
func NewUserService(userRepo *repository.UserRepo) *UserService {
	return &UserService{
		userRepo: userRepo,
	}
}

// GetUserInfo gets user info by Id
func (s *UserService) GetUserInfo(ctx context.Context, userId string) (*entity.UserInfo, error) {
	user, err := s.userRepo.GetById(ctx, userId)
	if err == nil {
		return user.ToUserInfo(), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.CtxError(ctx, "get user failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrInternalServer
	}
	if info, ok := placeholderInfo(userId); ok {
		return info, nil
	}
	return nil, errcode.ErrUserNotFound
}

// GetUserInfos returns profiles in request order. Duplicates are collapsed
// and ids that are neither stored nor portal ids are skipped.
func (s *UserService) GetUserInfos(ctx context.Context, userIds []string) ([]*entity.UserInfo, error) {
	ids := dedupe(userIds)
	if len(ids) > maxUserInfoBatch {
		return nil, errcode.ErrInvalidParam.Wrap(errTooManyUserIds)
	}

	users, err := s.userRepo.GetByIds(ctx, ids)
	if err != nil {
		log.CtxError(ctx, "get users failed: count=%d, error=%v", len(ids), err)
		return nil, errcode.ErrInternalServer
	}
	byId := make(map[string]*entity.User, len(users))
	for _, u := range users {
		byId[u.Id] = u
	}

	infos := make([]*entity.UserInfo, 0, len(ids))
	for _, id := range ids {
		if u, ok := byId[id]; ok {
			infos = append(infos, u.ToUserInfo())
			continue
		}
		if info, ok := placeholderInfo(id); ok {
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func placeholderInfo(userId string) (*entity.UserInfo, bool) {
	var actor identity.Actor
	if err := actor.FromChatUserId(userId); err != nil {
		return nil, false
	}
	u := &entity.User{Id: userId, Role: string(actor.Role)}
	return u.ToUserInfo(), true
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
