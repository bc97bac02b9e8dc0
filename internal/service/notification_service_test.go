package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/jobchat/pkg/constant"
	"github.com/mbeoliero/jobchat/pkg/errcode"
	"github.com/mbeoliero/jobchat/pkg/protocol"
)

func newNotificationService() (*NotificationService, *fakeNotifications, *recordingPublisher) {
	repo := &fakeNotifications{}
	pub := &recordingPublisher{}
	svc := &NotificationService{notifyRepo: repo, userRepo: newFakeUsers("js__2")}
	svc.SetPublisher(pub)
	return svc, repo, pub
}

func TestCreateNotification_Pushes(t *testing.T) {
	svc, repo, pub := newNotificationService()

	data, err := svc.CreateNotification(context.Background(), &CreateNotificationRequest{
		UserId:  "js__2",
		Type:    constant.NotificationJobMatch,
		Payload: json.RawMessage(`{"job_id":7}`),
	})
	require.NoError(t, err)
	assert.Nil(t, data.ReadAt)
	assert.Len(t, repo.items, 1)
	assert.Equal(t, []string{constant.UserNotificationsTopic("js__2")}, pub.topics(protocol.EventNewNotification))
}

func TestCreateNotification_Validation(t *testing.T) {
	svc, _, _ := newNotificationService()
	ctx := context.Background()

	_, err := svc.CreateNotification(ctx, &CreateNotificationRequest{UserId: "js__2", Type: "spam"})
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)

	_, err = svc.CreateNotification(ctx, &CreateNotificationRequest{UserId: "js__2", Type: constant.NotificationSystem, Payload: json.RawMessage(`{`)})
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)

	_, err = svc.CreateNotification(ctx, &CreateNotificationRequest{UserId: "js__404", Type: constant.NotificationSystem})
	assert.ErrorIs(t, err, errcode.ErrUserNotFound)
}

func TestMarkAllRead(t *testing.T) {
	svc, _, _ := newNotificationService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateNotification(ctx, &CreateNotificationRequest{UserId: "js__2", Type: constant.NotificationSystem})
		require.NoError(t, err)
	}

	list, err := svc.ListNotifications(ctx, "js__2", &ListNotificationsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), list.UnreadCount)

	resp, err := svc.MarkAllRead(ctx, "js__2", &MarkAllReadRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Updated)

	list, err = svc.ListNotifications(ctx, "js__2", &ListNotificationsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), list.UnreadCount)
}

func TestMarkAllRead_Failure(t *testing.T) {
	svc, repo, _ := newNotificationService()
	repo.markAllErr = errBoom

	_, err := svc.MarkAllRead(context.Background(), "js__2", &MarkAllReadRequest{})
	assert.ErrorIs(t, err, errcode.ErrMarkAllReadFailed)
}
