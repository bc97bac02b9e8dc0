package sdk

import (
	"context"
	"net/url"
)

// maxProfileBatch mirrors the server's per-request cap on /user/infos
const maxProfileBatch = 100

// Me returns the profile of the logged-in user
func (c *Client) Me(ctx context.Context) (*UserInfo, error) {
	var result UserInfo
	if err := c.get(ctx, "/user/info", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Profile returns another participant's profile. Portal users who never
// opened chat come back as placeholders named by their id.
func (c *Client) Profile(ctx context.Context, userId string) (*UserInfo, error) {
	var result UserInfo
	if err := c.get(ctx, "/user/info/"+url.PathEscape(userId), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Profiles looks up many users, splitting the ids into server-sized batches.
// The result is keyed by user id; unknown ids are absent.
func (c *Client) Profiles(ctx context.Context, userIds []string) (map[string]*UserInfo, error) {
	out := make(map[string]*UserInfo, len(userIds))
	for start := 0; start < len(userIds); start += maxProfileBatch {
		end := min(start+maxProfileBatch, len(userIds))
		var result userList
		if err := c.post(ctx, "/user/infos", &GetUsersInfoRequest{UserIds: userIds[start:end]}, &result); err != nil {
			return nil, err
		}
		for _, u := range result.Users {
			out[u.Id] = u
		}
	}
	return out, nil
}
