package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"gallerybot/internal/domain"
	"gallerybot/internal/flow"
	"gallerybot/internal/service"
	"gallerybot/internal/transport"
)

// Button callback data is "<action>[:arg...]". Telegram caps it at 64 bytes,
// so actions are short.
const (
	actMenu          = "menu"
	actAbout         = "about"
	actSettings      = "settings"
	actGallery       = "gallery"
	actAddFriend     = "add_friend"
	actRename        = "rename"
	actInviteAccept  = "inv_ok"
	actInviteDecline = "inv_no"
	actView          = "view"
	actAddItem       = "add_item"
	actSkipComment   = "skip"
	actItem          = "item"
	actComment       = "comment"
	actDelete        = "del"
	actDeleteOK      = "del_ok"
	actExport        = "export"
	actChat          = "chat"
	actChatCancel    = "chat_cancel"
	actChatAccept    = "chat_ok"
	actChatDecline   = "chat_no"
	actChatEnd       = "chat_end"

	actAdmin          = "adm"
	actAdminStats     = "adm_stats"
	actAdminLogs      = "adm_logs"
	actAdminClearLogs = "adm_clear"
	actAdminBroadcast = "adm_bcast"
	actAdminLookup    = "adm_lookup"
	actAdminBan       = "adm_ban"
	actAdminGalleries = "adm_user"
	actAdminGallery   = "adm_gal"
	actAdminExport    = "adm_export"
)

// Recent admin logs shown in the panel.
const adminLogLines = 20

var errButtonExpired = &domain.CodedError{Code: "button_expired", Kind: domain.ErrNotFound}

// errAcknowledged tells handleButton the press was already answered.
var errAcknowledged = errors.New("acknowledged")

func parseData(data string) (string, []string) {
	parts := strings.Split(data, ":")
	return parts[0], parts[1:]
}

func (b *Bot) handleButton(ctx context.Context, ev transport.Event) {
	action, args := parseData(ev.Data)
	if strings.HasPrefix(action, actAdmin) && !b.IsAdmin(ev.UserID) {
		b.ack(ctx, ev, textAdminsOnly, true)
		return
	}

	err := b.press(ctx, ev, action, args)
	switch {
	case err == nil:
		b.ack(ctx, ev, "", false)
	case errors.Is(err, errAcknowledged):
	default:
		b.logUnexpected(ctx, ev.UserID, action, err)
		b.ack(ctx, ev, errorText(err), true)
	}
}

func (b *Bot) press(ctx context.Context, ev transport.Event, action string, args []string) error {
	user := ev.UserID
	switch action {
	case actMenu:
		b.flow.Cancel(user)
		b.show(ctx, ev, mainMenu(b.IsAdmin(user)))
		return nil
	case actAbout:
		b.show(ctx, ev, aboutMessage())
		return nil
	case actSettings:
		return b.showSettings(ctx, ev)
	case actGallery:
		b.flow.Cancel(user)
		return b.showFriends(ctx, ev)
	case actAddFriend:
		return b.begin(ctx, ev, flow.FriendHandleStep{})
	}

	if len(args) == 0 {
		return b.pressAdmin(ctx, ev, action, args)
	}
	id := args[0]
	switch action {
	case actRename:
		if _, err := b.friends.Friend(ctx, user, id); err != nil {
			return err
		}
		return b.begin(ctx, ev, flow.FriendAliasStep{FriendID: id})
	case actInviteAccept:
		return b.acceptInvite(ctx, ev, id)
	case actInviteDecline:
		if _, err := b.friends.DeclineInvite(ctx, user, id); err != nil {
			return err
		}
		b.show(ctx, ev, transport.Text("Invite declined.", menuKeyboard()))
		return nil
	case actView:
		order := service.SortInsertion
		if len(args) > 1 {
			order = service.ParseSortOrder(args[1])
		}
		b.flow.Cancel(user)
		return b.showGallery(ctx, ev, id, order)
	case actAddItem:
		if _, err := b.friends.Friend(ctx, user, id); err != nil {
			return err
		}
		return b.begin(ctx, ev, flow.ItemNameStep{FriendID: id})
	case actSkipComment:
		return b.skipComment(ctx, ev, id)
	case actExport:
		return b.export(ctx, ev, id)
	case actChat:
		return b.startChat(ctx, ev, id)
	case actChatCancel:
		return b.cancelChat(ctx, ev, id)
	case actChatAccept:
		return b.acceptChat(ctx, ev, id)
	case actChatDecline:
		return b.declineChat(ctx, ev, id)
	case actChatEnd:
		return b.endChat(ctx, ev, id)
	case actItem, actComment, actDelete, actDeleteOK:
		ref, err := parseRef(args[1:])
		if err != nil {
			return err
		}
		return b.pressItem(ctx, ev, action, id, ref)
	}
	return b.pressAdmin(ctx, ev, action, args)
}

func parseRef(args []string) (service.ItemRef, error) {
	if len(args) != 2 {
		return service.ItemRef{}, errButtonExpired
	}
	idx, err := strconv.Atoi(args[0])
	if err != nil || idx < 0 {
		return service.ItemRef{}, errButtonExpired
	}
	return service.ItemRef{Index: idx, ID: args[1]}, nil
}

// begin starts a flow and shows its first prompt.
func (b *Bot) begin(ctx context.Context, ev transport.Event, step flow.Step) error {
	b.flow.Begin(ev.UserID, step)
	b.show(ctx, ev, prompt(step))
	return nil
}

func (b *Bot) showSettings(ctx context.Context, ev transport.Event) error {
	st, err := b.gallery.UserStats(ctx, ev.UserID)
	if err != nil {
		return err
	}
	b.show(ctx, ev, settingsMessage(ev.Handle, st))
	return nil
}

func (b *Bot) showFriends(ctx context.Context, ev transport.Event) error {
	friends, err := b.friends.Friends(ctx, ev.UserID)
	if err != nil {
		return err
	}
	b.show(ctx, ev, galleryMenu(friends))
	return nil
}

func (b *Bot) showGallery(ctx context.Context, ev transport.Event, friendID string, order service.SortOrder) error {
	f, err := b.friends.Friend(ctx, ev.UserID, friendID)
	if err != nil {
		return err
	}
	items, err := b.gallery.ListItems(ctx, ev.UserID, friendID, order)
	if err != nil {
		return err
	}
	b.show(ctx, ev, galleryView(f, items, order))
	return nil
}

func (b *Bot) acceptInvite(ctx context.Context, ev transport.Event, fromID string) error {
	peer, err := b.friends.AcceptInvite(ctx, ev.UserID, fromID)
	if err != nil {
		return err
	}
	b.show(ctx, ev, friendshipMessage(handleOrID(peer), peer.ID))
	b.send(ctx, peer.ID, friendshipMessage(b.nameFor(ctx, peer.ID, ev.UserID), ev.UserID))
	return nil
}

// skipComment advances the comment step when the button belongs to the
// flow that is actually active.
func (b *Bot) skipComment(ctx context.Context, ev transport.Event, friendID string) error {
	cur, ok := b.flow.Current(ev.UserID).(flow.ItemCommentStep)
	if !ok || cur.FriendID != friendID {
		return errButtonExpired
	}
	out, err := b.flow.Handle(ctx, ev.UserID, flow.Input{Skip: true})
	if err != nil {
		return err
	}
	if out.Step != nil {
		b.show(ctx, ev, prompt(out.Step))
	}
	return nil
}

func (b *Bot) pressItem(ctx context.Context, ev transport.Event, action, friendID string, ref service.ItemRef) error {
	user := ev.UserID
	if action == actDeleteOK {
		removed, err := b.gallery.RemoveItem(ctx, user, friendID, ref)
		if err != nil {
			return err
		}
		b.logger.Info("bot: item removed", "user_id", user, "item_id", removed.ID)
		return b.showGallery(ctx, ev, friendID, service.SortInsertion)
	}

	it, err := b.gallery.Item(ctx, user, friendID, ref)
	if err != nil {
		return err
	}
	switch action {
	case actItem:
		b.send(ctx, user, itemMessage(friendID, it))
	case actComment:
		return b.begin(ctx, ev, flow.NewCommentStep{FriendID: friendID, Ref: it.Ref()})
	case actDelete:
		b.show(ctx, ev, confirmDeleteMessage(friendID, it))
	}
	return nil
}

// export answers the press up front; sending every item takes a while.
func (b *Bot) export(ctx context.Context, ev transport.Event, friendID string) error {
	if _, err := b.friends.Friend(ctx, ev.UserID, friendID); err != nil {
		return err
	}
	b.ack(ctx, ev, textExportStarted, false)
	rep, err := b.gallery.Export(ctx, ev.UserID, friendID, b.sendItem(ev.UserID))
	if err != nil {
		b.fail(ctx, ev, err)
		return errAcknowledged
	}
	b.send(ctx, ev.UserID, exportReportMessage(rep, backKeyboard("🖼 Back to gallery", actView, friendID)))
	return errAcknowledged
}

func (b *Bot) sendItem(target string) func(ctx context.Context, it domain.Item) error {
	return func(ctx context.Context, it domain.Item) error {
		_, err := b.messenger.Deliver(ctx, target, exportMessage(it))
		return err
	}
}

// nameFor is how subjectID appears to viewerID: the viewer's alias when one
// is set, otherwise the handle.
func (b *Bot) nameFor(ctx context.Context, viewerID, subjectID string) string {
	if f, err := b.friends.Friend(ctx, viewerID, subjectID); err == nil {
		if f.Alias != "" {
			return f.Alias
		}
		if f.Handle != f.ID {
			return "@" + f.Handle
		}
	}
	if u, err := b.identity.Get(ctx, subjectID); err == nil {
		return handleOrID(u)
	}
	return subjectID
}

func handleOrID(u domain.Identity) string {
	if u.Handle != "" {
		return "@" + u.Handle
	}
	return u.ID
}
