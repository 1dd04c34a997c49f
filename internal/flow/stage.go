// Package flow tracks, per user, which multi-step input is expected next.
// Each user has at most one active step; starting a flow replaces whatever
// step was active before.
package flow

import "gallerybot/internal/domain"

type Stage int

const (
	None Stage = iota
	AwaitingFriendHandle
	AwaitingFriendAlias
	AwaitingItemName
	AwaitingItemComment
	AwaitingItemContent
	AwaitingNewComment
	AwaitingAdminLookup
	AwaitingAdminBanTarget
	AwaitingBroadcastPayload
)

var stageNames = [...]string{
	None:                     "none",
	AwaitingFriendHandle:     "awaiting_friend_handle",
	AwaitingFriendAlias:      "awaiting_friend_alias",
	AwaitingItemName:         "awaiting_item_name",
	AwaitingItemComment:      "awaiting_item_comment",
	AwaitingItemContent:      "awaiting_item_content",
	AwaitingNewComment:       "awaiting_new_comment",
	AwaitingAdminLookup:      "awaiting_admin_lookup",
	AwaitingAdminBanTarget:   "awaiting_admin_ban_target",
	AwaitingBroadcastPayload: "awaiting_broadcast_payload",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// InputKind is the kind of content a step is willing to look at.
type InputKind int

const (
	InputText InputKind = iota
	InputMedia
	InputAny
)

// Allows reports whether content of kind c may be offered to a step.
func (k InputKind) Allows(c domain.ContentKind) bool {
	switch k {
	case InputText:
		return c == domain.ContentText
	case InputMedia:
		return c.Storable()
	}
	return c != ""
}

func (k InputKind) refusal() error {
	switch k {
	case InputText:
		return invalid("input", "must be text")
	case InputMedia:
		return invalid("file", "must be a photo, video or document")
	}
	return invalid("message", "required")
}
