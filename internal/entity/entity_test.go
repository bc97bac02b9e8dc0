package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortParticipants(t *testing.T) {
	a, b := SortParticipants("em__7", "js__3")
	assert.Equal(t, "em__7", a)
	assert.Equal(t, "js__3", b)

	a2, b2 := SortParticipants("js__3", "em__7")
	assert.Equal(t, a, a2)
	assert.Equal(t, b, b2)
}

func TestConversationCounterpart(t *testing.T) {
	c := &Conversation{Id: "1", ParticipantA: "em__7", ParticipantB: "js__3"}
	assert.Equal(t, "js__3", c.Counterpart("em__7"))
	assert.Equal(t, "em__7", c.Counterpart("js__3"))
	assert.True(t, c.HasParticipant("js__3"))
	assert.False(t, c.HasParticipant("js__4"))

	info := c.ToConversationInfo("js__3")
	assert.Equal(t, "1", info.ConversationId)
	assert.Equal(t, "em__7", info.CounterpartId)
}

func TestMessageSnippet(t *testing.T) {
	m := &Message{Content: "héllo wörld"}
	assert.Equal(t, "héllo", m.Snippet(5))
	assert.Equal(t, "héllo wörld", m.Snippet(50))
}

func TestNotificationToData(t *testing.T) {
	payload := `{"job_id":42}`
	readAt := int64(1700)
	n := &Notification{Id: 9, Type: "job_match", Payload: &payload, ReadAt: &readAt, CreatedAt: 1600}

	data := n.ToNotificationData()
	assert.Equal(t, int64(9), data.Id)
	assert.JSONEq(t, payload, string(data.Payload))
	assert.True(t, n.IsRead())
	assert.Equal(t, readAt, *data.ReadAt)
}

func TestUserDisplayName(t *testing.T) {
	u := &User{Id: "em__7", Role: "employer"}
	assert.False(t, u.HasLocalLogin())
	assert.Equal(t, "em__7", u.ToUserInfo().Nickname)

	u.Nickname = "Acme Hiring"
	assert.Equal(t, "Acme Hiring", u.ToUserInfo().Nickname)
}
