package chatsync

import (
	"context"

	"github.com/mbeoliero/jobchat/sdk"
)

// Backend is the request/response side of the chat API
type Backend interface {
	ResolveConversation(ctx context.Context, counterpartId string) (string, error)
	FetchMessages(ctx context.Context, conversationId string, beforeId int64, pageSize int) ([]*sdk.Message, bool, error)
	SendMessage(ctx context.Context, conversationId, clientMsgId, content string) (*sdk.Message, error)
	// MarkRead returns the ids that changed state. ErrDuplicateSubmission
	// means none did.
	MarkRead(ctx context.Context, conversationId string, messageIds []int64) ([]int64, error)
	FetchPreviews(ctx context.Context) ([]*sdk.Preview, error)
	FetchNotifications(ctx context.Context, page, pageSize int) (*sdk.NotificationPage, error)
	MarkAllNotificationsRead(ctx context.Context) (*sdk.MarkAllReadResult, error)
}

// restBackend adapts sdk.Client and classifies its errors
type restBackend struct {
	client *sdk.Client
}

// NewRESTBackend returns a Backend talking to the REST API through client
func NewRESTBackend(client *sdk.Client) Backend {
	return &restBackend{client: client}
}

func (b *restBackend) ResolveConversation(ctx context.Context, counterpartId string) (string, error) {
	info, err := b.client.ResolveConversation(ctx, counterpartId)
	if err != nil {
		return "", classify(err)
	}
	return info.ConversationId, nil
}

func (b *restBackend) FetchMessages(ctx context.Context, conversationId string, beforeId int64, pageSize int) ([]*sdk.Message, bool, error) {
	resp, err := b.client.ListMessages(ctx, conversationId, beforeId, pageSize)
	if err != nil {
		return nil, false, classify(err)
	}
	return resp.Messages, resp.HasMore, nil
}

func (b *restBackend) SendMessage(ctx context.Context, conversationId, clientMsgId, content string) (*sdk.Message, error) {
	msg, err := b.client.SendMessage(ctx, &sdk.SendMessageRequest{
		ConversationId: conversationId,
		ClientMsgId:    clientMsgId,
		Content:        content,
	})
	if err != nil {
		return nil, classify(err)
	}
	return msg, nil
}

func (b *restBackend) MarkRead(ctx context.Context, conversationId string, messageIds []int64) ([]int64, error) {
	resp, err := b.client.MarkRead(ctx, conversationId, messageIds)
	if err != nil {
		return nil, classify(err)
	}
	return resp.MessageIds, nil
}

func (b *restBackend) FetchPreviews(ctx context.Context) ([]*sdk.Preview, error) {
	previews, err := b.client.GetPreviews(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return previews, nil
}

func (b *restBackend) FetchNotifications(ctx context.Context, page, pageSize int) (*sdk.NotificationPage, error) {
	resp, err := b.client.ListNotifications(ctx, page, pageSize)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}

func (b *restBackend) MarkAllNotificationsRead(ctx context.Context) (*sdk.MarkAllReadResult, error) {
	resp, err := b.client.MarkAllNotificationsRead(ctx, 0)
	if err != nil {
		return nil, classify(err)
	}
	return resp, nil
}
