package service

import (
	"context"
	"sort"

	"github.com/mbeoliero/jobchat/internal/entity"
	"github.com/mbeoliero/jobchat/internal/repository"
	"github.com/mbeoliero/jobchat/pkg/constant"
	"github.com/mbeoliero/jobchat/pkg/errcode"
	"github.com/mbeoliero/kit/log"
)

// ConversationService handles conversation-related business logic
type ConversationService struct {
	convRepo conversationStore
	msgRepo  messageStore
	userRepo userStore
}

// NewConversationService creates a new ConversationService
func NewConversationService(repos *repository.Repositories) *ConversationService {
	return &ConversationService{
		convRepo: repos.Conversation,
		msgRepo:  repos.Message,
		userRepo: repos.User,
	}
}

// ResolveRequest represents a resolve-or-create request
type ResolveRequest struct {
	CounterpartId string `json:"counterpart_id"`
}

// Resolve returns the conversation between the caller and the counterpart,
// creating it on first use. Repeated and concurrent calls for the same pair
// return the same conversation id.
func (s *ConversationService) Resolve(ctx context.Context, callerId string, req *ResolveRequest) (*entity.ConversationInfo, error) {
	if req.CounterpartId == "" || req.CounterpartId == callerId {
		return nil, errcode.ErrInvalidParticipant
	}

	exists, err := s.userRepo.Exists(ctx, req.CounterpartId)
	if err != nil {
		log.CtxError(ctx, "check counterpart exists failed: counterpart_id=%s, error=%v", req.CounterpartId, err)
		return nil, errcode.ErrResolveFailed
	}
	if !exists {
		return nil, errcode.ErrInvalidParticipant
	}

	conv, created, err := s.convRepo.GetOrCreate(ctx, callerId, req.CounterpartId)
	if err != nil {
		log.CtxError(ctx, "get or create conversation failed: caller_id=%s, counterpart_id=%s, error=%v", callerId, req.CounterpartId, err)
		return nil, errcode.ErrResolveFailed
	}
	if created {
		log.CtxInfo(ctx, "conversation created: conversation_id=%s, participant_a=%s, participant_b=%s", conv.Id, conv.ParticipantA, conv.ParticipantB)
	}

	return conv.ToConversationInfo(callerId), nil
}

// GetConversation gets a conversation the user participates in
func (s *ConversationService) GetConversation(ctx context.Context, userId, conversationId string) (*entity.Conversation, error) {
	conv, err := s.convRepo.GetById(ctx, conversationId)
	if err != nil {
		log.CtxError(ctx, "get conversation failed: conversation_id=%s, error=%v", conversationId, err)
		return nil, errcode.ErrInternalServer
	}
	if conv == nil {
		return nil, errcode.ErrConvNotFound
	}
	if !conv.HasParticipant(userId) {
		return nil, errcode.ErrNotParticipant
	}
	return conv, nil
}

// IsParticipant reports whether userId is a party of the conversation
func (s *ConversationService) IsParticipant(ctx context.Context, conversationId, userId string) (bool, error) {
	conv, err := s.convRepo.GetById(ctx, conversationId)
	if err != nil {
		return false, err
	}
	return conv != nil && conv.HasParticipant(userId), nil
}

// GetPreviews builds the viewer's chat preview list, most recent activity first
func (s *ConversationService) GetPreviews(ctx context.Context, viewerId string) ([]*entity.ChatPreview, error) {
	convs, err := s.convRepo.ListByUser(ctx, viewerId)
	if err != nil {
		log.CtxError(ctx, "list conversations failed: user_id=%s, error=%v", viewerId, err)
		return nil, errcode.ErrInternalServer
	}
	if len(convs) == 0 {
		return []*entity.ChatPreview{}, nil
	}

	convIds := make([]string, 0, len(convs))
	for _, conv := range convs {
		convIds = append(convIds, conv.Id)
	}

	latest, unread, err := s.msgRepo.PreviewState(ctx, viewerId, convIds, constant.PreviewUnreadIds)
	if err != nil {
		log.CtxError(ctx, "get preview state failed: user_id=%s, error=%v", viewerId, err)
		return nil, errcode.ErrInternalServer
	}

	previews := make([]*entity.ChatPreview, 0, len(convs))
	for _, conv := range convs {
		p := &entity.ChatPreview{
			ConversationId: conv.Id,
			CounterpartId:  conv.Counterpart(viewerId),
			UnreadIds:      []int64{},
			LastActivityAt: conv.CreatedAt,
		}
		if u, ok := unread[conv.Id]; ok {
			p.UnreadCount = u.Count
			if u.RecentIds != nil {
				p.UnreadIds = u.RecentIds
			}
		}
		if m, ok := latest[conv.Id]; ok {
			p.LastMessageId = m.Id
			p.LastSenderId = m.SenderId
			p.LastMessage = m.Snippet(constant.PreviewSnippetLen)
			p.LastActivityAt = m.CreatedAt
		}
		previews = append(previews, p)
	}

	sort.SliceStable(previews, func(i, j int) bool {
		return previews[i].LastActivityAt > previews[j].LastActivityAt
	})
	return previews, nil
}
