package bot

import (
	"context"
	"errors"
	"fmt"

	"gallerybot/internal/domain"
	"gallerybot/internal/transport"
)

func (b *Bot) startChat(ctx context.Context, ev transport.Event, friendID string) error {
	if _, err := b.chat.Request(ctx, ev.UserID, friendID); err != nil {
		return err
	}

	deliveryID, notified := b.send(ctx, friendID, chatRequestMessage(b.nameFor(ctx, friendID, ev.UserID), ev.UserID))
	if notified {
		if err := b.chat.AttachDelivery(ctx, ev.UserID, friendID, deliveryID); err != nil {
			// Resolved before the notice went out: the buttons are dead.
			if errors.Is(err, domain.ErrNoChatRequest) {
				b.retract(ctx, friendID, deliveryID)
			} else {
				b.logUnexpected(ctx, ev.UserID, "attach chat delivery", err)
			}
		}
	}
	b.show(ctx, ev, chatRequestedMessage(b.nameFor(ctx, ev.UserID, friendID), friendID, notified))
	return nil
}

func (b *Bot) cancelChat(ctx context.Context, ev transport.Event, friendID string) error {
	req, err := b.chat.Cancel(ctx, ev.UserID, friendID)
	if err != nil {
		return err
	}
	b.retract(ctx, req.ToID, req.DeliveryID)
	b.show(ctx, ev, transport.Text("Chat request cancelled.", backKeyboard("🖼 My galleries", actGallery)))
	return nil
}

func (b *Bot) acceptChat(ctx context.Context, ev transport.Event, requesterID string) error {
	acc, err := b.chat.Accept(ctx, ev.UserID, requesterID)
	if err != nil {
		return err
	}
	if w := acc.Withdrawn; w != nil {
		b.retract(ctx, w.ToID, w.DeliveryID)
	}
	b.show(ctx, ev, chatStartedMessage(b.nameFor(ctx, ev.UserID, requesterID), requesterID))
	b.send(ctx, requesterID, chatStartedMessage(b.nameFor(ctx, requesterID, ev.UserID), ev.UserID))
	return nil
}

func (b *Bot) declineChat(ctx context.Context, ev transport.Event, requesterID string) error {
	if _, err := b.chat.Decline(ctx, ev.UserID, requesterID); err != nil {
		return err
	}
	b.show(ctx, ev, transport.Text("Chat request declined.", menuKeyboard()))
	b.send(ctx, requesterID, transport.Text(
		fmt.Sprintf("❌ %s declined your chat request.", esc(b.nameFor(ctx, requesterID, ev.UserID))),
		menuKeyboard(),
	))
	return nil
}

func (b *Bot) endChat(ctx context.Context, ev transport.Event, partnerID string) error {
	partner, err := b.chat.End(ctx, ev.UserID, partnerID)
	if err != nil {
		return err
	}
	b.send(ctx, ev.UserID, transport.Text("🚪 Chat ended.", menuKeyboard()))
	b.send(ctx, partner, transport.Text(
		fmt.Sprintf("🚪 %s ended the chat.", esc(b.nameFor(ctx, partner, ev.UserID))),
		menuKeyboard(),
	))
	return nil
}

// relay forwards content to the chat partner. A failed forward is reported to
// the sender and leaves the session as it is.
func (b *Bot) relay(ctx context.Context, ev transport.Event, partner string) {
	name := b.nameFor(ctx, partner, ev.UserID)
	msg := relayMessage(name, ev.UserID, ev.Content)

	var err error
	if ev.Content.Kind == domain.ContentSticker {
		header := transport.Text(fmt.Sprintf("%s Message from %s", kindIcon(domain.ContentSticker), esc(name)), nil)
		if _, err = b.messenger.Deliver(ctx, partner, header); err == nil {
			_, err = b.messenger.Deliver(ctx, partner, msg)
		}
	} else {
		_, err = b.messenger.Deliver(ctx, partner, msg)
	}
	if err != nil {
		b.logger.Warn("bot: relay failed", "user_id", ev.UserID, "partner_id", partner, "err", err)
		b.admin.LogError(ctx, fmt.Sprintf("relay %s -> %s: %v", ev.UserID, partner, err))
		b.send(ctx, ev.UserID, transport.Text(textRelayFailed, endChatKeyboard(partner)))
	}
}
