package flow

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"gallerybot/internal/domain"
	"gallerybot/internal/service"
	"gallerybot/internal/transport"
)

// Input is one user input offered to the active step. Skip is the explicit
// "skip" signal for optional steps.
type Input struct {
	Content transport.Content
	Skip    bool
}

func TextInput(s string) Input {
	return Input{Content: transport.Content{Kind: domain.ContentText, Text: s}}
}

// Effects runs the side effect that completes a flow. Implementations reply
// to the user themselves.
type Effects interface {
	SendInvite(ctx context.Context, userID, handle string) error
	SetAlias(ctx context.Context, userID, friendID, alias string) error
	AddItem(ctx context.Context, userID, friendID string, item service.NewItem) error
	AddComment(ctx context.Context, userID, friendID string, ref service.ItemRef, text string) error
	LookupUser(ctx context.Context, userID, targetID string) error
	ToggleBan(ctx context.Context, userID, targetID string) error
	Broadcast(ctx context.Context, userID string, c transport.Content) error
}

// Transition is the result of a step accepting input: either the next step
// or the effect that completes the flow.
type Transition struct {
	Next   Step
	Effect func(ctx context.Context, userID string, fx Effects) error
}

type Step interface {
	Stage() Stage
	Accepts() InputKind
	// Next validates in. A validation error leaves the step active.
	Next(in Input) (Transition, error)
}

func invalid(field, msg string) error {
	return domain.NewValidationError(map[string]string{field: msg})
}

func textOf(in Input, field string, max int, required bool) (string, error) {
	if in.Content.Kind != domain.ContentText {
		return "", invalid(field, "must be text")
	}
	s := strings.TrimSpace(in.Content.Text)
	if required && s == "" {
		return "", invalid(field, "required")
	}
	if max > 0 && utf8.RuneCountInString(s) > max {
		return "", invalid(field, fmt.Sprintf("must be %d characters or less", max))
	}
	return s, nil
}

type FriendHandleStep struct{}

func (FriendHandleStep) Stage() Stage       { return AwaitingFriendHandle }
func (FriendHandleStep) Accepts() InputKind { return InputText }

func (FriendHandleStep) Next(in Input) (Transition, error) {
	handle, err := textOf(in, "username", 0, true)
	if err != nil {
		return Transition{}, err
	}
	return Transition{Effect: func(ctx context.Context, userID string, fx Effects) error {
		return fx.SendInvite(ctx, userID, handle)
	}}, nil
}

type FriendAliasStep struct {
	FriendID string
}

func (FriendAliasStep) Stage() Stage       { return AwaitingFriendAlias }
func (FriendAliasStep) Accepts() InputKind { return InputText }

func (s FriendAliasStep) Next(in Input) (Transition, error) {
	alias, err := textOf(in, "alias", domain.MaxAliasLen, true)
	if err != nil {
		return Transition{}, err
	}
	return Transition{Effect: func(ctx context.Context, userID string, fx Effects) error {
		return fx.SetAlias(ctx, userID, s.FriendID, alias)
	}}, nil
}

type ItemNameStep struct {
	FriendID string
}

func (ItemNameStep) Stage() Stage       { return AwaitingItemName }
func (ItemNameStep) Accepts() InputKind { return InputText }

func (s ItemNameStep) Next(in Input) (Transition, error) {
	name, err := textOf(in, "name", domain.MaxItemNameLen, true)
	if err != nil {
		return Transition{}, err
	}
	return Transition{Next: ItemCommentStep{FriendID: s.FriendID, Name: name}}, nil
}

// ItemCommentStep collects the optional item description.
type ItemCommentStep struct {
	FriendID string
	Name     string
}

func (ItemCommentStep) Stage() Stage       { return AwaitingItemComment }
func (ItemCommentStep) Accepts() InputKind { return InputText }

func (s ItemCommentStep) Next(in Input) (Transition, error) {
	next := ItemContentStep{FriendID: s.FriendID, Name: s.Name}
	if in.Skip {
		return Transition{Next: next}, nil
	}
	comment, err := textOf(in, "comment", domain.MaxDescriptionLen, false)
	if err != nil {
		return Transition{}, err
	}
	next.Description = comment
	return Transition{Next: next}, nil
}

type ItemContentStep struct {
	FriendID    string
	Name        string
	Description string
}

func (ItemContentStep) Stage() Stage       { return AwaitingItemContent }
func (ItemContentStep) Accepts() InputKind { return InputMedia }

func (s ItemContentStep) Next(in Input) (Transition, error) {
	if !in.Content.Kind.Storable() || in.Content.Handle == "" {
		return Transition{}, invalid("file", "must be a photo, video or document")
	}
	item := service.NewItem{
		Kind:        in.Content.Kind,
		Handle:      in.Content.Handle,
		Name:        s.Name,
		Description: s.Description,
	}
	return Transition{Effect: func(ctx context.Context, userID string, fx Effects) error {
		return fx.AddItem(ctx, userID, s.FriendID, item)
	}}, nil
}

type NewCommentStep struct {
	FriendID string
	Ref      service.ItemRef
}

func (NewCommentStep) Stage() Stage       { return AwaitingNewComment }
func (NewCommentStep) Accepts() InputKind { return InputText }

func (s NewCommentStep) Next(in Input) (Transition, error) {
	text, err := textOf(in, "comment", domain.MaxCommentLen, true)
	if err != nil {
		return Transition{}, err
	}
	return Transition{Effect: func(ctx context.Context, userID string, fx Effects) error {
		return fx.AddComment(ctx, userID, s.FriendID, s.Ref, text)
	}}, nil
}

type AdminLookupStep struct{}

func (AdminLookupStep) Stage() Stage       { return AwaitingAdminLookup }
func (AdminLookupStep) Accepts() InputKind { return InputText }

func (AdminLookupStep) Next(in Input) (Transition, error) {
	id, err := textOf(in, "id", 0, true)
	if err != nil {
		return Transition{}, err
	}
	return Transition{Effect: func(ctx context.Context, userID string, fx Effects) error {
		return fx.LookupUser(ctx, userID, id)
	}}, nil
}

type AdminBanStep struct{}

func (AdminBanStep) Stage() Stage       { return AwaitingAdminBanTarget }
func (AdminBanStep) Accepts() InputKind { return InputText }

func (AdminBanStep) Next(in Input) (Transition, error) {
	id, err := textOf(in, "id", 0, true)
	if err != nil {
		return Transition{}, err
	}
	return Transition{Effect: func(ctx context.Context, userID string, fx Effects) error {
		return fx.ToggleBan(ctx, userID, id)
	}}, nil
}

// BroadcastStep takes any content: text or media with caption.
type BroadcastStep struct{}

func (BroadcastStep) Stage() Stage       { return AwaitingBroadcastPayload }
func (BroadcastStep) Accepts() InputKind { return InputAny }

func (BroadcastStep) Next(in Input) (Transition, error) {
	c := in.Content
	if c.Kind == domain.ContentText && strings.TrimSpace(c.Text) == "" {
		return Transition{}, invalid("message", "required")
	}
	if c.Kind == "" {
		return Transition{}, invalid("message", "required")
	}
	return Transition{Effect: func(ctx context.Context, userID string, fx Effects) error {
		return fx.Broadcast(ctx, userID, c)
	}}, nil
}
