package entity

import (
	"time"
)

// NowUnixMilli returns current unix timestamp in milliseconds
func NowUnixMilli() int64 {
	return time.Now().UnixMilli()
}

// SortParticipants orders a participant pair so the same unordered pair
// always maps to the same (participant_a, participant_b) row.
func SortParticipants(userA, userB string) (string, string) {
	if userA > userB {
		return userB, userA
	}
	return userA, userB
}
