package service

import (
	"context"
	"encoding/json"

	"github.com/mbeoliero/jobchat/internal/entity"
	"github.com/mbeoliero/jobchat/internal/repository"
	"github.com/mbeoliero/jobchat/pkg/constant"
	"github.com/mbeoliero/jobchat/pkg/errcode"
	"github.com/mbeoliero/jobchat/pkg/idgen"
	"github.com/mbeoliero/jobchat/pkg/protocol"
	"github.com/mbeoliero/kit/log"
)

// NotificationService handles the system notification feed
type NotificationService struct {
	notifyRepo notificationStore
	userRepo   userStore
	publisher  EventPublisher
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(repos *repository.Repositories) *NotificationService {
	return &NotificationService{
		notifyRepo: repos.Notification,
		userRepo:   repos.User,
	}
}

// SetPublisher sets the push event publisher
func (s *NotificationService) SetPublisher(publisher EventPublisher) {
	s.publisher = publisher
}

// CreateNotificationRequest is sent by the portal backend to publish a notification
type CreateNotificationRequest struct {
	UserId  string          `json:"user_id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ListNotificationsRequest represents a feed page request
type ListNotificationsRequest struct {
	Page     int `query:"page"`
	PageSize int `query:"page_size"`
}

// ListNotificationsResponse is one page of the feed, newest first
type ListNotificationsResponse struct {
	Notifications []*protocol.NotificationData `json:"notifications"`
	HasMore       bool                         `json:"has_more"`
	UnreadCount   int64                        `json:"unread_count"`
}

// MarkAllReadRequest bounds mark-all-read to notifications the caller has seen
type MarkAllReadRequest struct {
	// Before is a created_at cutoff in unix millis; zero means now
	Before int64 `json:"before,omitempty"`
}

// MarkAllReadResponse reports the outcome of mark-all-read
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
	Cutoff  int64 `json:"cutoff"`
	ReadAt  int64 `json:"read_at"`
}

// CreateNotification stores a notification and pushes it on user.<uid>.notifications
func (s *NotificationService) CreateNotification(ctx context.Context, req *CreateNotificationRequest) (*protocol.NotificationData, error) {
	if req.UserId == "" || !constant.IsValidNotificationType(req.Type) {
		return nil, errcode.ErrInvalidParam
	}
	if len(req.Payload) > 0 && !json.Valid(req.Payload) {
		return nil, errcode.ErrInvalidParam
	}

	exists, err := s.userRepo.Exists(ctx, req.UserId)
	if err != nil {
		log.CtxError(ctx, "check user exists failed: user_id=%s, error=%v", req.UserId, err)
		return nil, errcode.ErrNotificationFailed
	}
	if !exists {
		return nil, errcode.ErrUserNotFound
	}

	id, err := idgen.NextInt64()
	if err != nil {
		log.CtxError(ctx, "generate notification id failed: %v", err)
		return nil, errcode.ErrNotificationFailed
	}

	n := &entity.Notification{
		Id:        id,
		UserId:    req.UserId,
		Type:      req.Type,
		CreatedAt: entity.NowUnixMilli(),
	}
	if len(req.Payload) > 0 {
		payload := string(req.Payload)
		n.Payload = &payload
	}

	if err := s.notifyRepo.Create(ctx, n); err != nil {
		log.CtxError(ctx, "create notification failed: user_id=%s, error=%v", req.UserId, err)
		return nil, errcode.ErrNotificationFailed
	}

	data := n.ToNotificationData()
	if s.publisher != nil {
		s.publisher.Publish(ctx, &protocol.PushEvent{
			Topic:        constant.UserNotificationsTopic(req.UserId),
			Kind:         protocol.EventNewNotification,
			Notification: data,
		})
	}

	log.CtxInfo(ctx, "notification created: user_id=%s, type=%s, id=%d", req.UserId, req.Type, n.Id)
	return data, nil
}

// ListNotifications returns one page of the user's feed and the unread total
func (s *NotificationService) ListNotifications(ctx context.Context, userId string, req *ListNotificationsRequest) (*ListNotificationsResponse, error) {
	page, pageSize := normalizePage(req.Page, req.PageSize)

	items, hasMore, err := s.notifyRepo.List(ctx, userId, page, pageSize)
	if err != nil {
		log.CtxError(ctx, "list notifications failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrNotificationFailed
	}
	unread, err := s.notifyRepo.UnreadCount(ctx, userId)
	if err != nil {
		log.CtxError(ctx, "count unread notifications failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrNotificationFailed
	}

	resp := &ListNotificationsResponse{
		Notifications: make([]*protocol.NotificationData, 0, len(items)),
		HasMore:       hasMore,
		UnreadCount:   unread,
	}
	for _, n := range items {
		resp.Notifications = append(resp.Notifications, n.ToNotificationData())
	}
	return resp, nil
}

// MarkAllRead marks every unread notification up to the cutoff as read in
// one statement. Either the whole set is marked or the call fails.
func (s *NotificationService) MarkAllRead(ctx context.Context, userId string, req *MarkAllReadRequest) (*MarkAllReadResponse, error) {
	now := entity.NowUnixMilli()
	cutoff := req.Before
	if cutoff <= 0 || cutoff > now {
		cutoff = now
	}

	updated, err := s.notifyRepo.MarkAllRead(ctx, userId, cutoff, now)
	if err != nil {
		log.CtxError(ctx, "mark all notifications read failed: user_id=%s, error=%v", userId, err)
		return nil, errcode.ErrMarkAllReadFailed
	}

	log.CtxInfo(ctx, "notifications marked read: user_id=%s, updated=%d", userId, updated)
	return &MarkAllReadResponse{Updated: updated, Cutoff: cutoff, ReadAt: now}, nil
}
