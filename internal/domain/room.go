package domain

import (
	"fmt"
	"strings"
)

type RoomType string

const (
	RoomTypePublic  RoomType = "public"
	RoomTypePrivate RoomType = "private"
	RoomTypeDirect  RoomType = "direct"
)

func ParseRoomType(s string) (RoomType, error) {
	switch RoomType(strings.ToLower(strings.TrimSpace(s))) {
	case RoomTypePublic, "":
		return RoomTypePublic, nil
	case RoomTypePrivate:
		return RoomTypePrivate, nil
	case RoomTypeDirect:
		return RoomTypeDirect, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRoomType, s)
}

// RoomKey identifies a room across all room types.
type RoomKey struct {
	Type RoomType
	ID   string
}

func NewRoomKey(roomType RoomType, id string) RoomKey {
	return RoomKey{Type: roomType, ID: id}
}

func (k RoomKey) String() string {
	return string(k.Type) + ":" + k.ID
}

// RoomInfo is the discovery view of a room.
type RoomInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	HasPassword bool   `json:"has_password"`
	MemberCount int    `json:"member_count"`
}

// Backlog is what a participant sees of a room at the moment it joins.
// Boundary is an id that sorts after every message in Messages and before
// every message posted after the join.
type Backlog struct {
	Messages []Message
	Hydrated bool
	Boundary string
}
