package bot

import (
	"context"

	"gallerybot/internal/flow"
	"gallerybot/internal/transport"
)

// pressAdmin handles admin panel buttons. handleButton has already checked
// that the user is an admin.
func (b *Bot) pressAdmin(ctx context.Context, ev transport.Event, action string, args []string) error {
	switch action {
	case actAdmin:
		b.flow.Cancel(ev.UserID)
		b.show(ctx, ev, adminPanel())
		return nil
	case actAdminStats:
		st, err := b.admin.Stats(ctx)
		if err != nil {
			return err
		}
		b.show(ctx, ev, statsMessage(st))
		return nil
	case actAdminLogs:
		entries, err := b.admin.Logs(ctx, adminLogLines)
		if err != nil {
			return err
		}
		b.show(ctx, ev, logsMessage(entries))
		return nil
	case actAdminClearLogs:
		if err := b.admin.ClearLogs(ctx); err != nil {
			return err
		}
		b.show(ctx, ev, transport.Text("🧹 Error log cleared.", adminBack()))
		return nil
	case actAdminBroadcast:
		return b.begin(ctx, ev, flow.BroadcastStep{})
	case actAdminLookup:
		return b.begin(ctx, ev, flow.AdminLookupStep{})
	case actAdminBan:
		banned, err := b.admin.Banned(ctx)
		if err != nil {
			return err
		}
		b.flow.Begin(ev.UserID, flow.AdminBanStep{})
		b.show(ctx, ev, banPrompt(banned))
		return nil
	}

	switch {
	case action == actAdminGalleries && len(args) == 1:
		rep, err := b.admin.LookupUser(ctx, args[0])
		if err != nil {
			return err
		}
		b.show(ctx, ev, userReportMessage(rep))
		return nil
	case action == actAdminGallery && len(args) == 2:
		g, err := b.admin.PairGallery(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		b.show(ctx, ev, pairGalleryMessage(args[0], args[1], g))
		return nil
	case action == actAdminExport && len(args) == 2:
		b.ack(ctx, ev, textExportStarted, false)
		rep, err := b.gallery.ExportPair(ctx, args[0], args[1], b.sendItem(ev.UserID))
		if err != nil {
			b.fail(ctx, ev, err)
			return errAcknowledged
		}
		b.send(ctx, ev.UserID, exportReportMessage(rep, backKeyboard("⬅️ Back", actAdminGallery, args[0], args[1])))
		return errAcknowledged
	}
	return errButtonExpired
}
