package objects

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrAstat is returned for metadata tokens that cannot be parsed.
var ErrAstat = errors.New("malformed astat")

// Subtypes of feed entries.
const (
	SubtypeEvent   = "event"
	SubtypeLike    = "like"
	SubtypeComment = "comment"
)

// TypeNames maps known event type codes to their API names.
var TypeNames = map[string]string{
	"1-1":  "photo_upload",
	"1-2":  "video_upload",
	"1-7":  "music_add",
	"3-3":  "user_community_actions_enter",
	"3-5":  "user_community_actions_leave",
	"3-23": "micropost",
	"5-7":  "avatar_change",
	"5-10": "gift_send",
	"5-11": "gift_received",
	"5-16": "app_add",
	"5-26": "share",
	"5-28": "app_info2",
	"5-37": "gift_receive_multi",
	"5-39": "community_post",
	"5-41": "user_post",
	"5-44": "community_video_upload",
	"5-47": "community_photo_upload",
	"5-50": "",
}

const astatFields = 9

// Astat is the colon separated metadata token attached to every feed entry:
//
//	user_world_id:event_type:event_id:owner_world_id:corr_world_id:corr_event_id:likes:comments:time[:...]
type Astat struct {
	UserWorldID   int64
	EventType     string
	EventID       string
	OwnerWorldID  string
	CorrWorldID   string
	CorrEventID   string
	LikesCount    int
	CommentsCount int
	EventTime     int64
}

func parseCount(name, value string) (int64, error) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrAstat, name, err)
	}
	return n, nil
}

func ParseAstat(raw string) (Astat, error) {
	fields := strings.Split(raw, ":")
	if len(fields) < astatFields {
		return Astat{}, fmt.Errorf("%w: expected %d fields, got %d in %q", ErrAstat, astatFields, len(fields), raw)
	}

	userWorldID, err := parseCount("user_world_id", fields[0])
	if err != nil {
		return Astat{}, err
	}
	likes, err := parseCount("likes_count", fields[6])
	if err != nil {
		return Astat{}, err
	}
	comments, err := parseCount("comments_count", fields[7])
	if err != nil {
		return Astat{}, err
	}
	eventTime, err := strconv.ParseInt(fields[8], 10, 64)
	if err != nil {
		return Astat{}, fmt.Errorf("%w: event_time: %w", ErrAstat, err)
	}
	if fields[1] == "" {
		return Astat{}, fmt.Errorf("%w: empty event type in %q", ErrAstat, raw)
	}

	return Astat{
		UserWorldID:   userWorldID,
		EventType:     fields[1],
		EventID:       fields[2],
		OwnerWorldID:  fields[3],
		CorrWorldID:   fields[4],
		CorrEventID:   fields[5],
		LikesCount:    int(likes),
		CommentsCount: int(comments),
		EventTime:     eventTime,
	}, nil
}

func (a Astat) ID() string {
	return strings.ToLower(a.EventID)
}

func (a Astat) Time() int64 {
	return a.EventTime
}

// Subtype is the third dash segment of the event type, "event" when absent.
func (a Astat) Subtype() string {
	code := strings.Split(a.EventType, "-")
	if len(code) < 3 {
		return SubtypeEvent
	}
	return strings.ToLower(code[2])
}

func (a Astat) baseType() string {
	code := strings.Split(a.EventType, "-")
	if len(code) > 2 {
		code = code[:2]
	}
	return strings.Join(code, "-")
}

// Type is the type code of a plain event, empty for like and comment wrappers.
func (a Astat) Type() string {
	if a.Subtype() != SubtypeEvent {
		return ""
	}
	return a.baseType()
}

// CorrType is the type code of the liked or commented event, empty for plain events.
func (a Astat) CorrType() string {
	if a.Subtype() == SubtypeEvent {
		return ""
	}
	return a.baseType()
}

func (a Astat) TypeName() string {
	return TypeNames[a.Type()]
}

func (a Astat) CorrTypeName() string {
	return TypeNames[a.CorrType()]
}
