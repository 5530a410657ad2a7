package core

import (
	"regexp"
	"strings"
)

// RoomKind classifies rooms by how they are addressed and retained.
type RoomKind string

const (
	// RoomKindCourse rooms belong to a course and persist indefinitely.
	RoomKindCourse RoomKind = "course"
	// RoomKindPrivate rooms hold a 1:1 chat and persist indefinitely.
	RoomKindPrivate RoomKind = "private"
	// RoomKindEphemeral rooms are swept with their history once empty.
	RoomKindEphemeral RoomKind = "ephemeral"
)

const (
	coursePrefix    = "course_"
	privatePrefix   = "private-"
	ephemeralPrefix = "ephemeral_"

	maxRoomIDLength = 128
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.:@-]+$`)

// Persistent reports whether the room's history outlives its participants.
func (k RoomKind) Persistent() bool {
	return k != RoomKindEphemeral
}

// ResolveCourseRoomID returns the room that carries a course's chat.
func ResolveCourseRoomID(courseID string) string {
	return coursePrefix + courseID
}

// ResolvePrivateRoomID returns the 1:1 room for two users. The result does not
// depend on argument order, so both participants converge on the same room.
func ResolvePrivateRoomID(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return privatePrefix + userA + "-" + userB
}

// ParseRoomID validates a room identifier and returns its kind.
func ParseRoomID(roomID string) (RoomKind, error) {
	if roomID == "" || len(roomID) > maxRoomIDLength || !roomIDPattern.MatchString(roomID) {
		return "", ErrInvalidRoom
	}

	switch {
	case strings.HasPrefix(roomID, coursePrefix):
		if len(roomID) == len(coursePrefix) {
			return "", ErrInvalidRoom
		}
		return RoomKindCourse, nil
	case strings.HasPrefix(roomID, ephemeralPrefix):
		if len(roomID) == len(ephemeralPrefix) {
			return "", ErrInvalidRoom
		}
		return RoomKindEphemeral, nil
	case strings.HasPrefix(roomID, privatePrefix):
		if !canonicalPrivate(strings.TrimPrefix(roomID, privatePrefix)) {
			return "", ErrInvalidRoom
		}
		return RoomKindPrivate, nil
	default:
		return "", ErrInvalidRoom
	}
}

// CourseIDFromRoomID extracts the course id of a course room.
func CourseIDFromRoomID(roomID string) (string, bool) {
	courseID, ok := strings.CutPrefix(roomID, coursePrefix)
	if !ok || courseID == "" {
		return "", false
	}
	return courseID, true
}

// PrivateRoomIncludes reports whether userID is one of the two participants of a private room.
func PrivateRoomIncludes(roomID, userID string) bool {
	rest, ok := strings.CutPrefix(roomID, privatePrefix)
	if !ok || userID == "" {
		return false
	}
	if peer, ok := strings.CutPrefix(rest, userID+"-"); ok && peer != "" && ResolvePrivateRoomID(userID, peer) == roomID {
		return true
	}
	if peer, ok := strings.CutSuffix(rest, "-"+userID); ok && peer != "" && ResolvePrivateRoomID(peer, userID) == roomID {
		return true
	}
	return false
}

// canonicalPrivate accepts "<a>-<b>" with a <= b for at least one split point.
// User ids may themselves contain dashes.
func canonicalPrivate(rest string) bool {
	for i := 1; i < len(rest)-1; i++ {
		if rest[i] != '-' {
			continue
		}
		a, b := rest[:i], rest[i+1:]
		if a <= b {
			return true
		}
	}
	return false
}
