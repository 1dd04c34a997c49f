package bot

import (
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"

	"gallerybot/internal/domain"
	"gallerybot/internal/flow"
	"gallerybot/internal/service"
	"gallerybot/internal/transport"
)

const (
	textBanned          = "⛔ You are banned from using this bot."
	textAdminsOnly      = "This action is for administrators only."
	textCancelled       = "Cancelled."
	textNothingToCancel = "There is nothing to cancel."
	textUnknownCommand  = "Unknown command. Use /start to open the menu."
	textMenuHint        = "Use the menu below or /start."
	textRelayFailed     = "❌ Could not deliver your message to your chat partner."
	textExportStarted   = "Export started"
	textButtonExpired   = "This button is no longer valid."

	textAbout = "<b>Shared gallery bot</b>\n\n" +
		"Invite a friend by username. Once they accept, the two of you share a private gallery " +
		"of photos, videos and documents. You can name and comment every file, sort the gallery, " +
		"export it back to the chat, and open a live chat with a friend.\n\n" +
		"Use /cancel to leave any input step."
)

// Gallery views list at most this many items as buttons.
const maxListedItems = 50

const dateLayout = "02.01.2006"

var esc = html.EscapeString

func btn(text string, parts ...string) transport.Button {
	return transport.Button{Text: text, Data: strings.Join(parts, ":")}
}

func menuKeyboard() transport.Keyboard {
	return transport.Keyboard{transport.Row(btn("🏠 Main menu", actMenu))}
}

func backKeyboard(text string, parts ...string) transport.Keyboard {
	return transport.Keyboard{transport.Row(btn(text, parts...))}
}

func mainMenu(isAdmin bool) transport.Message {
	kb := transport.Keyboard{
		transport.Row(btn("🖼 My galleries", actGallery)),
		transport.Row(btn("⚙️ Settings", actSettings), btn("ℹ️ About", actAbout)),
	}
	if isAdmin {
		kb = append(kb, transport.Row(btn("🔐 Admin panel", actAdmin)))
	}
	return transport.Text("👋 <b>Shared gallery</b>\n\nChoose an action:", kb)
}

func aboutMessage() transport.Message {
	return transport.Text(textAbout, menuKeyboard())
}

func galleryMenu(friends []domain.Friend) transport.Message {
	var sb strings.Builder
	sb.WriteString("🖼 <b>Your galleries</b>\n\n")
	if len(friends) == 0 {
		sb.WriteString("You have no friends yet. Add one to start a shared gallery.")
	} else {
		sb.WriteString("Pick a friend to open your shared gallery.")
	}
	kb := make(transport.Keyboard, 0, len(friends)+2)
	for _, f := range friends {
		kb = append(kb, transport.Row(
			btn("🖼 "+f.DisplayName(), actView, f.ID),
			btn("✏️", actRename, f.ID),
			btn("💬", actChat, f.ID),
		))
	}
	kb = append(kb,
		transport.Row(btn("➕ Add friend", actAddFriend)),
		transport.Row(btn("🏠 Main menu", actMenu)),
	)
	return transport.Text(sb.String(), kb)
}

func inviteMessage(inv domain.Invite) transport.Message {
	from := inv.FromHandle
	if from == "" {
		from = inv.FromID
	}
	return transport.Text(
		fmt.Sprintf("📨 @%s invites you to share a gallery.", esc(from)),
		transport.Keyboard{transport.Row(
			btn("✅ Accept", actInviteAccept, inv.FromID),
			btn("❌ Decline", actInviteDecline, inv.FromID),
		)},
	)
}

func inviteSentMessage(target string, notified bool) transport.Message {
	text := fmt.Sprintf("✅ Invite sent to @%s.", esc(target))
	if !notified {
		text = fmt.Sprintf("✅ Invite saved for @%s. They will see it the next time they use /start.", esc(target))
	}
	return transport.Text(text, backKeyboard("🖼 My galleries", actGallery))
}

func friendshipMessage(name, friendID string) transport.Message {
	return transport.Text(
		fmt.Sprintf("🎉 You and %s are now friends and share a gallery.", esc(name)),
		transport.Keyboard{
			transport.Row(btn("🖼 Open gallery", actView, friendID)),
			transport.Row(btn("🏠 Main menu", actMenu)),
		},
	)
}

func kindIcon(k domain.ContentKind) string {
	switch k {
	case domain.ContentPhoto:
		return "🖼"
	case domain.ContentVideo:
		return "🎥"
	case domain.ContentDocument:
		return "📄"
	case domain.ContentVoice:
		return "🎤"
	case domain.ContentSticker:
		return "🎭"
	}
	return "💬"
}

var sortLabels = map[service.SortOrder]string{
	service.SortInsertion:   "as added",
	service.SortDateDesc:    "newest first",
	service.SortDateAsc:     "oldest first",
	service.SortNameAsc:     "name A-Z",
	service.SortNameDesc:    "name Z-A",
	service.SortContributor: "by contributor",
}

func galleryView(f domain.Friend, items []service.ListedItem, order service.SortOrder) transport.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🖼 <b>Gallery with %s</b>\n", esc(f.DisplayName()))
	fmt.Fprintf(&sb, "Files: %d, sorted %s.\n", len(items), sortLabels[order])
	if len(items) == 0 {
		sb.WriteString("\nThe gallery is empty. Add the first file!")
	}
	if len(items) > maxListedItems {
		fmt.Fprintf(&sb, "\nShowing the first %d files.", maxListedItems)
		items = items[:maxListedItems]
	}

	kb := transport.Keyboard{transport.Row(btn("➕ Add file", actAddItem, f.ID))}
	for _, it := range items {
		idx := fmt.Sprint(it.Index)
		kb = append(kb, transport.Row(
			btn(kindIcon(it.Kind)+" "+it.Name, actItem, f.ID, idx, it.ID),
			btn("🗑", actDelete, f.ID, idx, it.ID),
		))
	}
	kb = append(kb,
		transport.Row(
			btn("📅 Newest", actView, f.ID, string(service.SortDateDesc)),
			btn("📅 Oldest", actView, f.ID, string(service.SortDateAsc)),
		),
		transport.Row(
			btn("🔤 A-Z", actView, f.ID, string(service.SortNameAsc)),
			btn("🔤 Z-A", actView, f.ID, string(service.SortNameDesc)),
			btn("👤 By user", actView, f.ID, string(service.SortContributor)),
		),
	)
	if len(items) > 0 {
		kb = append(kb, transport.Row(btn("📤 Export all", actExport, f.ID)))
	}
	kb = append(kb, transport.Row(btn("⬅️ Back", actGallery)))
	return transport.Text(sb.String(), kb)
}

// Only the latest comments fit in a media caption.
const maxCaptionComments = 10

func itemCaption(it domain.Item) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b>", esc(it.Name))
	if it.Description != "" {
		fmt.Fprintf(&sb, "\n%s", esc(it.Description))
	}
	fmt.Fprintf(&sb, "\n\n👤 @%s, %s", esc(it.AddedBy), it.AddedAt.Format(dateLayout))
	if len(it.Comments) > 0 {
		sb.WriteString("\n\n💬 Comments:")
		comments := it.Comments
		if len(comments) > maxCaptionComments {
			comments = comments[len(comments)-maxCaptionComments:]
		}
		for _, c := range comments {
			fmt.Fprintf(&sb, "\n@%s: %s", esc(c.Author), esc(c.Text))
		}
	}
	return sb.String()
}

func itemMessage(friendID string, it service.ListedItem) transport.Message {
	idx := fmt.Sprint(it.Index)
	return transport.Message{
		Content: transport.Content{Kind: it.Kind, Handle: it.Handle, Text: itemCaption(it.Item)},
		Keyboard: transport.Keyboard{
			transport.Row(
				btn("💬 Comment", actComment, friendID, idx, it.ID),
				btn("🗑 Delete", actDelete, friendID, idx, it.ID),
			),
			transport.Row(btn("⬅️ Back to gallery", actView, friendID)),
		},
	}
}

func exportMessage(it domain.Item) transport.Message {
	return transport.Message{Content: transport.Content{Kind: it.Kind, Handle: it.Handle, Text: itemCaption(it)}}
}

func exportReportMessage(rep service.ExportReport, back transport.Keyboard) transport.Message {
	text := fmt.Sprintf("📤 Export finished: %d of %d files sent.", rep.Sent, rep.Total)
	if rep.Failed > 0 {
		text += fmt.Sprintf(" %d failed.", rep.Failed)
	}
	return transport.Text(text, back)
}

func itemAddedNotice(sender string, it domain.Item, senderID string) transport.Message {
	text := fmt.Sprintf("📸 %s added a new file to your shared gallery!\n\n<b>%s</b>", esc(sender), esc(it.Name))
	if it.Description != "" {
		text += "\n💬 " + esc(it.Description)
	}
	return transport.Message{
		Content:  transport.Content{Kind: it.Kind, Handle: it.Handle, Text: text},
		Keyboard: backKeyboard("🖼 Open gallery", actView, senderID),
	}
}

func confirmDeleteMessage(friendID string, it service.ListedItem) transport.Message {
	idx := fmt.Sprint(it.Index)
	return transport.Text(
		fmt.Sprintf("🗑 Delete <b>%s</b> from the gallery? This cannot be undone.", esc(it.Name)),
		transport.Keyboard{transport.Row(
			btn("✅ Delete", actDeleteOK, friendID, idx, it.ID),
			btn("❌ Keep", actView, friendID),
		)},
	)
}

func settingsMessage(handle string, st domain.UserStats) transport.Message {
	var sb strings.Builder
	sb.WriteString("⚙️ <b>Settings</b>\n\n")
	if handle != "" {
		fmt.Fprintf(&sb, "Username: @%s\n", esc(handle))
	}
	fmt.Fprintf(&sb, "Friends: %d\nFiles in your galleries: %d\n", st.Friends, st.TotalItems)
	if st.MostActiveHandle != "" {
		fmt.Fprintf(&sb, "Most active gallery: @%s (%d files)\n", esc(st.MostActiveHandle), st.MostActiveItems)
	}
	return transport.Text(sb.String(), menuKeyboard())
}

func chatRequestMessage(from, fromID string) transport.Message {
	return transport.Text(
		fmt.Sprintf("💬 %s wants to start a chat with you.", esc(from)),
		transport.Keyboard{transport.Row(
			btn("✅ Accept", actChatAccept, fromID),
			btn("❌ Decline", actChatDecline, fromID),
		)},
	)
}

func chatRequestedMessage(to, toID string, notified bool) transport.Message {
	text := fmt.Sprintf("⏳ Chat request sent to %s. Waiting for an answer.", esc(to))
	if !notified {
		text = fmt.Sprintf("⏳ Chat request saved, but %s could not be notified.", esc(to))
	}
	return transport.Text(text, backKeyboard("❌ Cancel request", actChatCancel, toID))
}

func chatStartedMessage(partner, partnerID string) transport.Message {
	return transport.Text(
		fmt.Sprintf("✅ Chat with %s started. Everything you send now goes to them.", esc(partner)),
		endChatKeyboard(partnerID),
	)
}

func endChatKeyboard(partnerID string) transport.Keyboard {
	return backKeyboard("🚪 End chat", actChatEnd, partnerID)
}

// relayMessage wraps content from a chat partner.
func relayMessage(from, fromID string, c transport.Content) transport.Message {
	header := fmt.Sprintf("%s Message from %s", kindIcon(c.Kind), esc(from))
	out := c
	switch c.Kind {
	case domain.ContentText:
		out.Text = header + "\n\n" + esc(c.Text)
	case domain.ContentSticker:
		out.Text = ""
	default:
		out.Text = header
		if c.Text != "" {
			out.Text += "\n\n" + esc(c.Text)
		}
	}
	return transport.Message{Content: out, Keyboard: endChatKeyboard(fromID)}
}

func adminPanel() transport.Message {
	return transport.Text("🔐 <b>Admin panel</b>", transport.Keyboard{
		transport.Row(btn("📊 Statistics", actAdminStats), btn("📋 Error log", actAdminLogs)),
		transport.Row(btn("🔍 Look up user", actAdminLookup), btn("⛔ Ban / unban", actAdminBan)),
		transport.Row(btn("📢 Broadcast", actAdminBroadcast)),
		transport.Row(btn("🏠 Main menu", actMenu)),
	})
}

func adminBack() transport.Keyboard {
	return backKeyboard("⬅️ Admin panel", actAdmin)
}

func statsMessage(st domain.Stats) transport.Message {
	text := fmt.Sprintf("📊 <b>Statistics</b>\n\n"+
		"Users: %d\nBanned: %d\nGalleries: %d\nFiles: %d\n"+
		"  photos: %d\n  videos: %d\n  documents: %d\nActive chats: %d",
		st.Users, st.Banned, st.Galleries, st.Items, st.Photos, st.Videos, st.Documents, st.ActiveChats)
	return transport.Text(text, adminBack())
}

func logsMessage(entries []domain.ErrorEntry) transport.Message {
	if len(entries) == 0 {
		return transport.Text("📋 The error log is empty.", adminBack())
	}
	var sb strings.Builder
	sb.WriteString("📋 <b>Recent errors</b>\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "\n%s %s", e.At.Format("02.01 15:04"), esc(e.Message))
	}
	return transport.Text(sb.String(), transport.Keyboard{
		transport.Row(btn("🧹 Clear", actAdminClearLogs)),
		transport.Row(btn("⬅️ Admin panel", actAdmin)),
	})
}

func userReportMessage(rep domain.UserReport) transport.Message {
	var sb strings.Builder
	handle := rep.User.Handle
	if handle == "" {
		handle = "(no username)"
	}
	fmt.Fprintf(&sb, "👤 <b>%s</b>\nID: <code>%s</code>\n", esc(handle), esc(rep.User.ID))
	if !rep.User.RegisteredAt.IsZero() {
		fmt.Fprintf(&sb, "Registered: %s\n", rep.User.RegisteredAt.Format(dateLayout))
	}
	if rep.Banned {
		sb.WriteString("Status: ⛔ banned\n")
	}
	fmt.Fprintf(&sb, "Friends: %d\nFiles: %d\n", len(rep.Galleries), rep.TotalItems)

	kb := transport.Keyboard{}
	for _, g := range rep.Galleries {
		kb = append(kb, transport.Row(btn(
			fmt.Sprintf("🖼 %s (%d)", g.Friend.Handle, g.Items),
			actAdminGallery, rep.User.ID, g.Friend.ID,
		)))
	}
	kb = append(kb, transport.Row(btn("⬅️ Admin panel", actAdmin)))
	return transport.Text(sb.String(), kb)
}

func pairGalleryMessage(a, b string, g domain.Gallery) transport.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🖼 <b>Gallery %s</b>\nFiles: %d\n", esc(domain.PairKey(a, b)), len(g.Items))
	for i, it := range g.Items {
		if i == maxListedItems {
			fmt.Fprintf(&sb, "\n… and %d more", len(g.Items)-i)
			break
		}
		fmt.Fprintf(&sb, "\n%d. %s %s (@%s, %s)", i+1, kindIcon(it.Kind), esc(it.Name), esc(it.AddedBy), it.AddedAt.Format(dateLayout))
	}
	kb := transport.Keyboard{}
	if len(g.Items) > 0 {
		kb = append(kb, transport.Row(btn("📤 Export", actAdminExport, a, b)))
	}
	kb = append(kb, transport.Row(btn("⬅️ Back", actAdminGalleries, a)))
	return transport.Text(sb.String(), kb)
}

func broadcastReportMessage(rep service.BroadcastReport) transport.Message {
	return transport.Text(
		fmt.Sprintf("📢 Broadcast finished: %d of %d delivered, %d failed.", rep.Sent, rep.Total, rep.Failed),
		adminBack(),
	)
}

// prompt renders the request for the input step expects.
func prompt(step flow.Step) transport.Message {
	switch s := step.(type) {
	case flow.FriendHandleStep:
		return transport.Text("Send your friend's username, e.g. @username.", backKeyboard("❌ Cancel", actGallery))
	case flow.FriendAliasStep:
		return transport.Text(
			fmt.Sprintf("Send a new name for this friend (up to %d characters).", domain.MaxAliasLen),
			backKeyboard("❌ Cancel", actGallery))
	case flow.ItemNameStep:
		return transport.Text(
			fmt.Sprintf("Send a name for the file (up to %d characters).", domain.MaxItemNameLen),
			backKeyboard("❌ Cancel", actView, s.FriendID))
	case flow.ItemCommentStep:
		return transport.Text(
			fmt.Sprintf("Send a comment for <b>%s</b> (up to %d characters) or skip.", esc(s.Name), domain.MaxDescriptionLen),
			transport.Keyboard{transport.Row(
				btn("⏭ Skip", actSkipComment, s.FriendID),
				btn("❌ Cancel", actView, s.FriendID),
			)})
	case flow.ItemContentStep:
		return transport.Text("Now send the photo, video or document.", backKeyboard("❌ Cancel", actView, s.FriendID))
	case flow.NewCommentStep:
		return transport.Text(
			fmt.Sprintf("Send your comment (up to %d characters).", domain.MaxCommentLen),
			backKeyboard("❌ Cancel", actView, s.FriendID))
	case flow.AdminLookupStep:
		return transport.Text("Send the user id to look up.", adminBack())
	case flow.AdminBanStep:
		return transport.Text("Send the user id to ban or unban.", adminBack())
	case flow.BroadcastStep:
		return transport.Text("Send the message to broadcast to every user. Text and media are both fine.", adminBack())
	}
	return transport.Text(textMenuHint, menuKeyboard())
}

func banPrompt(banned []string) transport.Message {
	msg := prompt(flow.AdminBanStep{})
	if len(banned) > 0 {
		sorted := append([]string(nil), banned...)
		sort.Strings(sorted)
		msg.Content.Text += "\n\nCurrently banned: <code>" + esc(strings.Join(sorted, ", ")) + "</code>"
	}
	return msg
}

var fieldLabels = map[string]string{
	"name":     "Name",
	"comment":  "Comment",
	"alias":    "Name",
	"username": "Username",
	"file":     "File",
	"id":       "User id",
	"message":  "Message",
	"input":    "Reply",
}

func errorText(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		keys := make([]string, 0, len(ve.Fields))
		for k := range ve.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			label := fieldLabels[k]
			if label == "" {
				label = k
			}
			parts = append(parts, label+" "+ve.Fields[k])
		}
		return "⚠️ " + strings.Join(parts, "; ") + "."
	}

	var ce *domain.CodedError
	if errors.As(err, &ce) {
		switch ce {
		case domain.ErrUnknownHandle:
			return "❌ No user with that username. They need to open the bot with /start first."
		case domain.ErrUnknownUser:
			return "❌ Unknown user."
		case domain.ErrNoInvite:
			return "❌ This invite is no longer valid."
		case domain.ErrNotFriends:
			return "❌ You are not friends with this user."
		case domain.ErrItemNotFound:
			return "❌ This file no longer exists."
		case domain.ErrNoChatRequest:
			return "❌ This chat request is no longer valid."
		case domain.ErrNoActiveChat:
			return "❌ There is no active chat."
		case domain.ErrNoGallery:
			return "❌ These users have no gallery."
		case domain.ErrSelfInvite:
			return "❌ You cannot invite yourself."
		case domain.ErrAlreadyFriends:
			return "ℹ️ You are already friends."
		case domain.ErrSelfChat:
			return "❌ You cannot chat with yourself."
		case domain.ErrRequestAlreadyActive:
			return "⏳ You already have a pending chat request or an active chat."
		case domain.ErrChatBusy:
			return "⏳ One of you is already in a chat."
		case domain.ErrBanned:
			return textBanned
		case domain.ErrNotAdmin:
			return textAdminsOnly
		case errButtonExpired:
			return textButtonExpired
		}
	}

	switch domain.Kind(err) {
	case domain.ErrPersistence:
		return "❌ Could not save your change. Please try again."
	case domain.ErrDelivery:
		return "❌ The message could not be delivered."
	}
	return "❌ Something went wrong. Please try again."
}

func errorMessage(err error) transport.Message {
	return transport.Text(esc(errorText(err)), menuKeyboard())
}
