package sdk

import (
	"context"
	"strconv"
)

// SendMessage sends a message. Retrying with the same ClientMsgId returns
// the stored message instead of creating a second one.
func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*Message, error) {
	var result Message
	if err := c.post(ctx, "/msg/send", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListMessages fetches the messages older than beforeId, or the newest ones
// when beforeId is 0. Messages are ordered oldest to newest.
func (c *Client) ListMessages(ctx context.Context, conversationId string, beforeId int64, pageSize int) (*MessagePage, error) {
	params := map[string]string{
		"conversation_id": conversationId,
	}
	if beforeId > 0 {
		params["before_id"] = strconv.FormatInt(beforeId, 10)
	}
	if pageSize > 0 {
		params["page_size"] = strconv.Itoa(pageSize)
	}

	var result MessagePage
	if err := c.get(ctx, "/msg/list", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkRead marks messages received by the caller as read and returns the
// ids that changed. ErrAlreadyRead is returned when none did.
func (c *Client) MarkRead(ctx context.Context, conversationId string, messageIds []int64) (*MarkReadResponse, error) {
	req := &MarkReadRequest{
		ConversationId: conversationId,
		MessageIds:     messageIds,
	}
	var result MarkReadResponse
	if err := c.post(ctx, "/msg/mark_read", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
