package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/mbeoliero/jobchat/internal/entity"
	"github.com/mbeoliero/jobchat/internal/repository"
	"github.com/mbeoliero/jobchat/pkg/constant"
	"github.com/mbeoliero/jobchat/pkg/errcode"
	"github.com/mbeoliero/jobchat/pkg/idgen"
	"github.com/mbeoliero/jobchat/pkg/protocol"
	"github.com/mbeoliero/kit/log"
	"gorm.io/gorm"
)

// MessageService handles message-related business logic
type MessageService struct {
	msgRepo   messageStore
	convRepo  conversationStore
	tx        txRunner
	publisher EventPublisher
}

// NewMessageService creates a new MessageService
func NewMessageService(repos *repository.Repositories) *MessageService {
	return &MessageService{
		msgRepo:  repos.Message,
		convRepo: repos.Conversation,
		tx:       repos.Transaction,
	}
}

// SetPublisher sets the push event publisher
func (s *MessageService) SetPublisher(publisher EventPublisher) {
	s.publisher = publisher
}

// SendMessageRequest represents send message request
type SendMessageRequest struct {
	ConversationId string `json:"conversation_id"`
	ClientMsgId    string `json:"client_msg_id"`
	Content        string `json:"content"`
}

// ListMessagesRequest asks for the messages older than BeforeId, or the
// newest window when BeforeId is 0
type ListMessagesRequest struct {
	ConversationId string `query:"conversation_id"`
	BeforeId       int64  `query:"before_id"`
	PageSize       int    `query:"page_size"`
}

// ListMessagesResponse is one page of history, oldest to newest
type ListMessagesResponse struct {
	Messages []*protocol.MessageData `json:"messages"`
	HasMore  bool                    `json:"has_more"`
}

// MarkReadRequest represents mark read request
type MarkReadRequest struct {
	ConversationId string  `json:"conversation_id"`
	MessageIds     []int64 `json:"message_ids"`
}

// MarkReadResponse lists the ids this call transitioned to read
type MarkReadResponse struct {
	MessageIds []int64 `json:"message_ids"`
}

// SendMessage stores a message and publishes it to the conversation topic
// and to both participants' user topics. A retry with the same client_msg_id
// returns the stored message.
func (s *MessageService) SendMessage(ctx context.Context, senderId string, req *SendMessageRequest) (*protocol.MessageData, error) {
	if req.ConversationId == "" || req.ClientMsgId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, errcode.ErrInvalidParam
	}
	if utf8.RuneCountInString(req.Content) > constant.MaxContentLength {
		return nil, errcode.ErrContentTooLong
	}

	conv, err := s.participantConversation(ctx, senderId, req.ConversationId)
	if err != nil {
		return nil, err
	}

	existingMsg, err := s.msgRepo.GetByClientMsgId(ctx, senderId, req.ClientMsgId)
	if err != nil {
		log.CtxError(ctx, "check idempotency failed: %v", err)
		return nil, errcode.ErrInternalServer
	}
	if existingMsg != nil {
		log.CtxDebug(ctx, "duplicate message: client_msg_id=%s", req.ClientMsgId)
		return existingMsg.ToMessageData(), nil
	}

	id, err := idgen.NextInt64()
	if err != nil {
		log.CtxError(ctx, "generate message id failed: %v", err)
		return nil, errcode.ErrSendFailed
	}

	msg := &entity.Message{
		Id:             id,
		ConversationId: conv.Id,
		ClientMsgId:    req.ClientMsgId,
		SenderId:       senderId,
		ReceiverId:     conv.Counterpart(senderId),
		Content:        req.Content,
		CreatedAt:      entity.NowUnixMilli(),
	}

	err = s.tx(ctx, func(tx *gorm.DB) error {
		if err := s.msgRepo.Create(ctx, tx, msg); err != nil {
			return err
		}
		return s.convRepo.TouchLastMessage(ctx, tx, conv.Id, msg.CreatedAt)
	})
	if err != nil {
		// A concurrent retry may have won the unique (sender_id, client_msg_id) index
		if existingMsg, lookupErr := s.msgRepo.GetByClientMsgId(ctx, senderId, req.ClientMsgId); lookupErr == nil && existingMsg != nil {
			return existingMsg.ToMessageData(), nil
		}
		log.CtxError(ctx, "send message failed: conversation_id=%s, sender_id=%s, error=%v", conv.Id, senderId, err)
		return nil, errcode.ErrSendFailed
	}

	data := msg.ToMessageData()
	s.publish(ctx, conv, protocol.EventNewMessage, func(e *protocol.PushEvent) { e.Message = data })

	log.CtxInfo(ctx, "message sent: conversation_id=%s, sender_id=%s, receiver_id=%s, id=%d", conv.Id, senderId, msg.ReceiverId, msg.Id)
	return data, nil
}

// ListMessages returns one window of a conversation's history. Paging with
// the oldest id already held never overlaps earlier windows, however many
// messages arrived since.
func (s *MessageService) ListMessages(ctx context.Context, userId string, req *ListMessagesRequest) (*ListMessagesResponse, error) {
	if req.ConversationId == "" {
		return nil, errcode.ErrInvalidParam
	}
	if _, err := s.participantConversation(ctx, userId, req.ConversationId); err != nil {
		return nil, err
	}

	if req.BeforeId < 0 {
		return nil, errcode.ErrInvalidParam
	}
	_, pageSize := normalizePage(1, req.PageSize)
	messages, hasMore, err := s.msgRepo.ListBefore(ctx, req.ConversationId, req.BeforeId, pageSize)
	if err != nil {
		log.CtxError(ctx, "list messages failed: conversation_id=%s, before_id=%d, error=%v", req.ConversationId, req.BeforeId, err)
		return nil, errcode.ErrPullFailed
	}

	resp := &ListMessagesResponse{
		Messages: make([]*protocol.MessageData, 0, len(messages)),
		HasMore:  hasMore,
	}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, m.ToMessageData())
	}
	return resp, nil
}

// MarkRead marks messages addressed to the caller as read. Only unread
// messages change; when none do the call answers ErrAlreadyRead. One receipt
// event covering every changed id is published per topic.
func (s *MessageService) MarkRead(ctx context.Context, userId string, req *MarkReadRequest) (*MarkReadResponse, error) {
	if req.ConversationId == "" || len(req.MessageIds) == 0 {
		return nil, errcode.ErrInvalidParam
	}
	if len(req.MessageIds) > constant.MaxMarkReadBatch {
		return nil, errcode.ErrInvalidParam
	}

	conv, err := s.participantConversation(ctx, userId, req.ConversationId)
	if err != nil {
		return nil, err
	}

	flipped, err := s.msgRepo.MarkRead(ctx, conv.Id, userId, req.MessageIds)
	if err != nil {
		log.CtxError(ctx, "mark read failed: conversation_id=%s, user_id=%s, error=%v", conv.Id, userId, err)
		return nil, errcode.ErrInternalServer
	}
	if len(flipped) == 0 {
		return nil, errcode.ErrAlreadyRead
	}

	receipt := &protocol.ReadReceiptData{
		ConversationId: conv.Id,
		MessageIds:     flipped,
		ActingUserId:   userId,
	}
	s.publish(ctx, conv, protocol.EventReadReceipt, func(e *protocol.PushEvent) { e.Receipt = receipt })

	log.CtxInfo(ctx, "messages marked read: conversation_id=%s, user_id=%s, count=%d", conv.Id, userId, len(flipped))
	return &MarkReadResponse{MessageIds: flipped}, nil
}

func (s *MessageService) participantConversation(ctx context.Context, userId, conversationId string) (*entity.Conversation, error) {
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

// publish sends the event on chat.<cid> and on both participants' message topics
func (s *MessageService) publish(ctx context.Context, conv *entity.Conversation, kind string, fill func(*protocol.PushEvent)) {
	if s.publisher == nil {
		return
	}
	topics := []string{
		constant.ChatTopic(conv.Id),
		constant.UserMessagesTopic(conv.ParticipantA),
		constant.UserMessagesTopic(conv.ParticipantB),
	}
	for _, topic := range topics {
		event := &protocol.PushEvent{Topic: topic, Kind: kind}
		fill(event)
		s.publisher.Publish(ctx, event)
	}
}
