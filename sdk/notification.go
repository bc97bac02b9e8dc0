package sdk

import (
	"context"
	"strconv"
)

// ListNotifications fetches one page of the caller's notification feed
func (c *Client) ListNotifications(ctx context.Context, page, pageSize int) (*NotificationPage, error) {
	params := map[string]string{"page": strconv.Itoa(page)}
	if pageSize > 0 {
		params["page_size"] = strconv.Itoa(pageSize)
	}

	var result NotificationPage
	if err := c.get(ctx, "/notification/list", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MarkAllNotificationsRead marks every unread notification created at or
// before before as read. Zero means now.
func (c *Client) MarkAllNotificationsRead(ctx context.Context, before int64) (*MarkAllReadResult, error) {
	var result MarkAllReadResult
	if err := c.post(ctx, "/notification/mark_all_read", &MarkAllReadRequest{Before: before}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateNotification publishes a notification. The client token must be the
// server's publisher token rather than a user token.
func (c *Client) CreateNotification(ctx context.Context, req *CreateNotificationRequest) (*Notification, error) {
	var result Notification
	if err := c.post(ctx, "/notification/create", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
