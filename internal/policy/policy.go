// Package policy decides who may join which room.
package policy

import (
	"context"
	"fmt"

	"github.com/vovakirdan/campuschat/internal/core"
	"github.com/vovakirdan/campuschat/internal/store"
)

// Modes for course rooms.
const (
	// ModeOpen lets any authenticated user join any course room.
	ModeOpen = "open"
	// ModeEnrollment requires an enrollment record for the course.
	ModeEnrollment = "enrollment"
)

// Checker implements core.Authorizer.
type Checker struct {
	mode        string
	enrollments store.EnrollmentStore
}

// NewChecker builds a checker. enrollments may be nil in open mode.
func NewChecker(mode string, enrollments store.EnrollmentStore) (*Checker, error) {
	switch mode {
	case ModeOpen:
	case ModeEnrollment:
		if enrollments == nil {
			return nil, fmt.Errorf("mode %q needs an enrollment store", mode)
		}
	default:
		return nil, fmt.Errorf("unknown authorization mode %q", mode)
	}
	return &Checker{mode: mode, enrollments: enrollments}, nil
}

// CanJoin reports whether userID may join roomID.
func (c *Checker) CanJoin(ctx context.Context, userID, roomID string) (bool, error) {
	kind, err := core.ParseRoomID(roomID)
	if err != nil {
		return false, nil
	}

	switch kind {
	case core.RoomKindPrivate:
		return core.PrivateRoomIncludes(roomID, userID), nil
	case core.RoomKindEphemeral:
		return true, nil
	case core.RoomKindCourse:
		if c.mode == ModeOpen {
			return true, nil
		}
		courseID, _ := core.CourseIDFromRoomID(roomID)
		ok, err := c.enrollments.IsEnrolled(ctx, userID, courseID)
		if err != nil {
			return false, fmt.Errorf("check enrollment: %w", err)
		}
		return ok, nil
	default:
		return false, nil
	}
}
