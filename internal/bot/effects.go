package bot

import (
	"context"
	"fmt"

	"gallerybot/internal/domain"
	"gallerybot/internal/service"
	"gallerybot/internal/transport"
)

// effects completes interaction flows on behalf of the bot. Each method
// replies to the user itself; a returned error is reported by handleContent.
type effects struct {
	b *Bot
}

func (e effects) SendInvite(ctx context.Context, userID, handle string) error {
	sent, err := e.b.friends.SendInvite(ctx, userID, handle)
	if err != nil {
		return err
	}
	_, notified := e.b.send(ctx, sent.Target.ID, inviteMessage(sent.Invite))
	target := sent.Target.Handle
	if target == "" {
		target = sent.Target.ID
	}
	e.b.send(ctx, userID, inviteSentMessage(target, notified))
	return nil
}

func (e effects) SetAlias(ctx context.Context, userID, friendID, alias string) error {
	if err := e.b.friends.SetAlias(ctx, userID, friendID, alias); err != nil {
		return err
	}
	e.b.send(ctx, userID, transport.Text(
		fmt.Sprintf("✅ Saved. This friend now shows as <b>%s</b>.", esc(alias)),
		backKeyboard("🖼 My galleries", actGallery),
	))
	return nil
}

func (e effects) AddItem(ctx context.Context, userID, friendID string, in service.NewItem) error {
	it, err := e.b.gallery.AddItem(ctx, userID, friendID, in)
	if err != nil {
		return err
	}
	e.b.send(ctx, friendID, itemAddedNotice(e.b.nameFor(ctx, friendID, userID), it, userID))
	e.b.send(ctx, userID, transport.Text(
		fmt.Sprintf("✅ <b>%s</b> added to the gallery.", esc(it.Name)),
		backKeyboard("🖼 Back to gallery", actView, friendID),
	))
	return nil
}

func (e effects) AddComment(ctx context.Context, userID, friendID string, ref service.ItemRef, text string) error {
	it, err := e.b.gallery.AddComment(ctx, userID, friendID, ref, text)
	if err != nil {
		return err
	}
	e.b.send(ctx, userID, transport.Text(
		fmt.Sprintf("✅ Comment added to <b>%s</b>.", esc(it.Name)),
		transport.Keyboard{
			transport.Row(btn("🔍 Show file", actItem, friendID, fmt.Sprint(ref.Index), it.ID)),
			transport.Row(btn("🖼 Back to gallery", actView, friendID)),
		},
	))
	return nil
}

func (e effects) LookupUser(ctx context.Context, userID, targetID string) error {
	if !e.b.IsAdmin(userID) {
		return domain.ErrNotAdmin
	}
	rep, err := e.b.admin.LookupUser(ctx, targetID)
	if err != nil {
		return err
	}
	e.b.send(ctx, userID, userReportMessage(rep))
	return nil
}

func (e effects) ToggleBan(ctx context.Context, userID, targetID string) error {
	if !e.b.IsAdmin(userID) {
		return domain.ErrNotAdmin
	}
	banned, err := e.b.admin.ToggleBan(ctx, targetID)
	if err != nil {
		return err
	}
	state := "unbanned"
	if banned {
		state = "banned"
	}
	e.b.logger.Info("bot: ban toggled", "admin_id", userID, "target_id", targetID, "banned", banned)
	e.b.send(ctx, userID, transport.Text(
		fmt.Sprintf("✅ User <code>%s</code> is now %s.", esc(targetID), state),
		adminBack(),
	))
	return nil
}

func (e effects) Broadcast(ctx context.Context, userID string, c transport.Content) error {
	if !e.b.IsAdmin(userID) {
		return domain.ErrNotAdmin
	}
	msg := transport.Message{Content: c}
	if c.Kind == domain.ContentText {
		msg.Content.Text = "📢 " + esc(c.Text)
	} else if c.Text != "" {
		msg.Content.Text = esc(c.Text)
	}
	rep, err := e.b.admin.Broadcast(ctx, func(ctx context.Context, u domain.Identity) error {
		_, err := e.b.messenger.Deliver(ctx, u.ID, msg)
		return err
	})
	if err != nil {
		return err
	}
	e.b.send(ctx, userID, broadcastReportMessage(rep))
	return nil
}
