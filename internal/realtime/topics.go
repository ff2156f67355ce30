package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Topic names a category of change. Publishers and subscribers share these
// constants; any other string is still accepted on the wire.
type Topic string

const (
	TopicAPIUpdate Topic = "api:update"

	TopicUsersCreate Topic = "users:create"
	TopicUsersUpdate Topic = "users:update"
	TopicUsersDelete Topic = "users:delete"

	TopicCoursesCreate Topic = "courses:create"
	TopicCoursesUpdate Topic = "courses:update"
	TopicCoursesDelete Topic = "courses:delete"

	TopicInstructorsCreate Topic = "instructors:create"
	TopicInstructorsUpdate Topic = "instructors:update"
	TopicInstructorsDelete Topic = "instructors:delete"
	TopicInstructorsBan    Topic = "instructors:ban"

	TopicRolesUpdate      Topic = "roles:update"
	TopicRolesPermissions Topic = "roles:permissions"

	TopicOrdersCreate Topic = "orders:create"
	TopicOrdersUpdate Topic = "orders:update"
	TopicOrdersPaid   Topic = "orders:paid"

	TopicAuditLogsCreate Topic = "audit-logs:create"

	TopicNotificationsCreate Topic = "notifications:create"

	// Admin-room only.
	TopicAdminSettingsUpdate Topic = "admin:settings:update"
	TopicAdminReportsUpdate  Topic = "admin:reports:update"
	TopicAdminInventoryLow   Topic = "admin:inventory:low"
)

// UpdateTopic returns "<resource>:update".
func UpdateTopic(resource string) Topic { return Topic(resource + ":update") }

func (t Topic) String() string { return string(t) }

// Privileged reports whether the topic is meant for the admin room only.
func (t Topic) Privileged() bool { return strings.HasPrefix(string(t), "admin:") }

// Room names.
const (
	RoomAdmin      = "admin"
	userRoomPrefix = "user:"
)

// UserRoom returns the room holding every session of one subject.
func UserRoom(subjectID string) string { return userRoomPrefix + subjectID }

// ScopeKind selects the breadth of a publish.
type ScopeKind int

const (
	ScopeAll ScopeKind = iota
	ScopeRoom
	ScopeSession
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeRoom:
		return "room"
	case ScopeSession:
		return "session"
	default:
		return "all"
	}
}

// Scope is the delivery target of a publish.
type Scope struct {
	Kind   ScopeKind
	Target string
}

func All() Scope                 { return Scope{Kind: ScopeAll} }
func Room(name string) Scope     { return Scope{Kind: ScopeRoom, Target: name} }
func SessionScope(id string) Scope { return Scope{Kind: ScopeSession, Target: id} }

func (s Scope) String() string {
	if s.Kind == ScopeAll {
		return "all"
	}
	return s.Kind.String() + ":" + s.Target
}

var ErrInvalidScope = errors.New("invalid scope")

// ScopeSpec is the JSON form of a scope: the string "all", or an object with
// exactly one of room / sessionId. An absent scope means all.
type ScopeSpec struct {
	Room      string `json:"room,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

func (s *ScopeSpec) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if str != "" && str != "all" {
			return fmt.Errorf("%w: %q", ErrInvalidScope, str)
		}
		*s = ScopeSpec{}
		return nil
	}
	type plain ScopeSpec
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	*s = ScopeSpec(p)
	return nil
}

// Resolve converts the spec to a Scope.
func (s ScopeSpec) Resolve() (Scope, error) {
	switch {
	case s.Room != "" && s.SessionID != "":
		return Scope{}, fmt.Errorf("%w: room and sessionId are exclusive", ErrInvalidScope)
	case s.Room != "":
		return Room(s.Room), nil
	case s.SessionID != "":
		return SessionScope(s.SessionID), nil
	default:
		return All(), nil
	}
}
