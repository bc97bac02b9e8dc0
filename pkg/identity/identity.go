// Package identity maps portal accounts to chat user ids.
package identity

import (
	"fmt"
	"strconv"

	"github.com/mbeoliero/jobchat/pkg/constant"
)

const (
	PrefixLength = 4
)

// RoleType defines the portal role behind a chat user.
type RoleType string

const (
	RoleJobseeker RoleType = constant.RoleJobseeker
	RoleEmployer  RoleType = constant.RoleEmployer
	RoleAdmin     RoleType = constant.RoleAdmin
)

var rolePrefixes = map[RoleType]string{
	RoleJobseeker: "js__",
	RoleEmployer:  "em__",
	RoleAdmin:     "ad__",
}

// Actor represents a portal account that maps to a chat user id.
type Actor struct {
	Id   int64
	Role RoleType
}

// ToChatUserId converts an Actor to the chat system's string user id.
//
//	Actor{Id: 42, Role: RoleJobseeker}.ToChatUserId()  => "js__42"
//	Actor{Id: 7, Role: RoleEmployer}.ToChatUserId()    => "em__7"
func (a *Actor) ToChatUserId() (string, error) {
	prefix, ok := rolePrefixes[a.Role]
	if !ok {
		return "", fmt.Errorf("failed to transfer actor to user id, role: %s", a.Role)
	}
	return fmt.Sprintf("%s%d", prefix, a.Id), nil
}

// FromChatUserId parses a chat user id string back into an Actor.
// Returns an error if the format is unrecognised.
func (a *Actor) FromChatUserId(userId string) error {
	if a == nil {
		return fmt.Errorf("actor is nil")
	}
	if len(userId) < PrefixLength+1 {
		return fmt.Errorf("invalid userId: %q", userId)
	}
	prefix := userId[:PrefixLength]
	idStr := userId[PrefixLength:]

	var role RoleType
	for r, p := range rolePrefixes {
		if p == prefix {
			role = r
			break
		}
	}
	if role == "" {
		return fmt.Errorf("unknown prefix: %q", prefix)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id: %q", idStr)
	}
	a.Id = id
	a.Role = role
	return nil
}
