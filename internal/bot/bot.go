// Package bot turns classified transport events into service calls and
// replies. Every event is handled on its own; the bot holds no per-user
// state besides the interaction flow cursors.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gallerybot/internal/domain"
	"gallerybot/internal/flow"
	"gallerybot/internal/service"
	"gallerybot/internal/transport"
)

type Options struct {
	Messenger transport.Messenger
	Identity  *service.IdentityService
	Friends   *service.FriendsService
	Gallery   *service.GalleryService
	Chat      *service.ChatService
	Admin     *service.AdminService
	AdminIDs  []string
	Shards    int
	Logger    *slog.Logger
}

type Bot struct {
	messenger transport.Messenger
	identity  *service.IdentityService
	friends   *service.FriendsService
	gallery   *service.GalleryService
	chat      *service.ChatService
	admin     *service.AdminService
	admins    map[string]struct{}
	flow      *flow.Machine
	logger    *slog.Logger
}

func New(opts Options) (*Bot, error) {
	if opts.Messenger == nil {
		return nil, errors.New("bot: messenger required")
	}
	if opts.Identity == nil || opts.Friends == nil || opts.Gallery == nil || opts.Chat == nil || opts.Admin == nil {
		return nil, errors.New("bot: services required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bot{
		messenger: opts.Messenger,
		identity:  opts.Identity,
		friends:   opts.Friends,
		gallery:   opts.Gallery,
		chat:      opts.Chat,
		admin:     opts.Admin,
		admins:    map[string]struct{}{},
		logger:    logger,
	}
	for _, id := range opts.AdminIDs {
		if id = strings.TrimSpace(id); id != "" {
			b.admins[id] = struct{}{}
		}
	}
	b.flow = flow.NewMachine(effects{b}, opts.Shards)
	return b, nil
}

func (b *Bot) IsAdmin(userID string) bool {
	_, ok := b.admins[userID]
	return ok
}

// Stage reports the interaction stage userID is in.
func (b *Bot) Stage(userID string) flow.Stage {
	return b.flow.Stage(userID)
}

// Handle processes one inbound event. It never panics on domain errors; every
// failure ends up as a reply, a log line, or both.
func (b *Bot) Handle(ctx context.Context, ev transport.Event) {
	if ev.UserID == "" || ev.Kind == transport.EventUnknown {
		return
	}
	log := b.logger.With("user_id", ev.UserID)

	if _, _, err := b.identity.Register(ctx, ev.UserID, ev.Handle); err != nil {
		log.Error("bot: register failed", "err", err)
		b.fail(ctx, ev, err)
		return
	}

	if !b.IsAdmin(ev.UserID) {
		banned, err := b.identity.IsBanned(ctx, ev.UserID)
		if err != nil {
			log.Error("bot: ban check failed", "err", err)
			return
		}
		if banned {
			if ev.Kind == transport.EventButton {
				b.ack(ctx, ev, textBanned, true)
				return
			}
			b.send(ctx, ev.UserID, transport.Text(textBanned, nil))
			return
		}
	}

	switch ev.Kind {
	case transport.EventCommand:
		b.handleCommand(ctx, ev)
	case transport.EventButton:
		b.handleButton(ctx, ev)
	case transport.EventContent:
		b.handleContent(ctx, ev)
	}
}

func (b *Bot) handleCommand(ctx context.Context, ev transport.Event) {
	switch ev.Command {
	case "start":
		b.flow.Cancel(ev.UserID)
		inv, ok, err := b.friends.PendingInvite(ctx, ev.UserID)
		if err != nil {
			b.fail(ctx, ev, err)
			return
		}
		if ok {
			b.send(ctx, ev.UserID, inviteMessage(inv))
			return
		}
		b.send(ctx, ev.UserID, mainMenu(b.IsAdmin(ev.UserID)))
	case "admin":
		if !b.IsAdmin(ev.UserID) {
			b.send(ctx, ev.UserID, transport.Text(textAdminsOnly, nil))
			return
		}
		b.flow.Cancel(ev.UserID)
		b.send(ctx, ev.UserID, adminPanel())
	case "cancel":
		if _, ok := b.flow.Cancel(ev.UserID); ok {
			b.send(ctx, ev.UserID, transport.Text(textCancelled, menuKeyboard()))
			return
		}
		b.send(ctx, ev.UserID, transport.Text(textNothingToCancel, menuKeyboard()))
	default:
		b.send(ctx, ev.UserID, transport.Text(textUnknownCommand, menuKeyboard()))
	}
}

// handleContent gives the active flow first claim on the input, then the
// active chat session, and otherwise points the user at the menu.
func (b *Bot) handleContent(ctx context.Context, ev transport.Event) {
	out, err := b.flow.Handle(ctx, ev.UserID, flow.Input{Content: ev.Content})
	if out.Consumed {
		switch {
		case err != nil:
			msg := errorMessage(err)
			if out.Step != nil && errors.Is(err, domain.ErrValidation) {
				p := prompt(out.Step)
				msg = transport.Text(esc(errorText(err))+"\n\n"+p.Content.Text, p.Keyboard)
			}
			b.logUnexpected(ctx, ev.UserID, "flow", err)
			b.send(ctx, ev.UserID, msg)
		case out.Stale:
			b.logger.Debug("bot: stale flow input dropped", "user_id", ev.UserID)
		case !out.Completed && out.Step != nil:
			b.send(ctx, ev.UserID, prompt(out.Step))
		}
		return
	}

	partner, ok, err := b.chat.Partner(ctx, ev.UserID)
	if err != nil {
		b.fail(ctx, ev, err)
		return
	}
	if ok {
		b.relay(ctx, ev, partner)
		return
	}
	b.send(ctx, ev.UserID, transport.Text(textMenuHint, menuKeyboard()))
}

// send delivers msg and logs a failure. Courtesy messages never fail the
// operation that triggered them.
func (b *Bot) send(ctx context.Context, target string, msg transport.Message) (string, bool) {
	id, err := b.messenger.Deliver(ctx, target, msg)
	if err != nil {
		b.logger.Warn("bot: deliver failed", "target", target, "err", err)
		b.admin.LogError(ctx, fmt.Sprintf("deliver to %s: %v", target, err))
		return "", false
	}
	return id, true
}

// show answers a button press by editing the pressed message when possible.
func (b *Bot) show(ctx context.Context, ev transport.Event, msg transport.Message) {
	if ev.Kind == transport.EventButton && msg.Content.Kind == domain.ContentText {
		msg.ReplaceID = ev.MessageID
	}
	b.send(ctx, ev.UserID, msg)
}

func (b *Bot) retract(ctx context.Context, target, deliveryID string) {
	if deliveryID == "" {
		return
	}
	if err := b.messenger.Retract(ctx, target, deliveryID); err != nil {
		b.logger.Debug("bot: retract failed", "target", target, "delivery_id", deliveryID, "err", err)
	}
}

func (b *Bot) ack(ctx context.Context, ev transport.Event, text string, alert bool) {
	if ev.CallbackID == "" {
		return
	}
	if err := b.messenger.Acknowledge(ctx, ev.CallbackID, text, alert); err != nil {
		b.logger.Debug("bot: acknowledge failed", "user_id", ev.UserID, "err", err)
	}
}

// fail reports err to the user behind ev.
func (b *Bot) fail(ctx context.Context, ev transport.Event, err error) {
	b.logUnexpected(ctx, ev.UserID, "event", err)
	b.send(ctx, ev.UserID, errorMessage(err))
}

// logUnexpected records errors a user cannot fix by retrying differently.
func (b *Bot) logUnexpected(ctx context.Context, userID, op string, err error) {
	switch domain.Kind(err) {
	case domain.ErrValidation, domain.ErrNotFound, domain.ErrConflict, domain.ErrForbidden:
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	b.logger.Error("bot: operation failed", "op", op, "user_id", userID, "err", err)
	b.admin.LogError(ctx, fmt.Sprintf("%s for %s: %v", op, userID, err))
}
