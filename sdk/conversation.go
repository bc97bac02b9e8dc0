package sdk

import "context"

// ResolveConversation returns the conversation with counterpartId, creating it
// on first use
func (c *Client) ResolveConversation(ctx context.Context, counterpartId string) (*ConversationInfo, error) {
	var result ConversationInfo
	req := &ResolveConversationRequest{CounterpartId: counterpartId}
	if err := c.post(ctx, "/conversation/resolve", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetConversation gets a specific conversation
func (c *Client) GetConversation(ctx context.Context, conversationId string) (*ConversationInfo, error) {
	params := map[string]string{"conversation_id": conversationId}
	var result ConversationInfo
	if err := c.get(ctx, "/conversation/info", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPreviews gets one preview per conversation, most recent activity first
func (c *Client) GetPreviews(ctx context.Context) ([]*Preview, error) {
	var result PreviewList
	if err := c.get(ctx, "/conversation/previews", nil, &result); err != nil {
		return nil, err
	}
	return result.Previews, nil
}
