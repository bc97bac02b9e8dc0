package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/jobchat/internal/entity"
	"github.com/mbeoliero/jobchat/pkg/errcode"
)

func TestGetUserInfo(t *testing.T) {
	users := newFakeUsers()
	users.users["em__7"] = &entity.User{Id: "em__7", Nickname: "Acme HR", Role: "employer"}
	svc := &UserService{userRepo: users}
	ctx := context.Background()

	info, err := svc.GetUserInfo(ctx, "em__7")
	require.NoError(t, err)
	assert.Equal(t, "Acme HR", info.Nickname)

	// portal id without a chat row yet
	info, err = svc.GetUserInfo(ctx, "js__9")
	require.NoError(t, err)
	assert.Equal(t, "jobseeker", info.Role)
	assert.Equal(t, "js__9", info.Nickname)

	_, err = svc.GetUserInfo(ctx, "bob")
	assert.ErrorIs(t, err, errcode.ErrUserNotFound)
}

func TestGetUserInfos(t *testing.T) {
	users := newFakeUsers()
	users.users["em__7"] = &entity.User{Id: "em__7", Nickname: "Acme HR", Role: "employer"}
	svc := &UserService{userRepo: users}

	infos, err := svc.GetUserInfos(context.Background(), []string{"js__3", "em__7", "js__3", "", "bob"})
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "js__3", infos[0].Id)
	assert.Equal(t, "em__7", infos[1].Id)
}

func TestGetUserInfosBatchLimit(t *testing.T) {
	svc := &UserService{userRepo: newFakeUsers()}
	ids := make([]string, maxUserInfoBatch+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("js__%d", i)
	}
	_, err := svc.GetUserInfos(context.Background(), ids)
	assert.ErrorIs(t, err, errcode.ErrInvalidParam)
}
