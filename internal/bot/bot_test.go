package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"gallerybot/internal/domain"
	"gallerybot/internal/flow"
	"gallerybot/internal/service"
	"gallerybot/internal/store"
	"gallerybot/internal/transport"
)

type delivery struct {
	target string
	id     string
	msg    transport.Message
}

type ack struct {
	callbackID string
	text       string
	alert      bool
}

type fakeMessenger struct {
	mu         sync.Mutex
	seq        int
	deliveries []delivery
	retracted  []string
	acks       []ack
	failFor    map[string]error
}

func (m *fakeMessenger) Deliver(ctx context.Context, target string, msg transport.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failFor[target]; err != nil {
		return "", domain.NewDeliveryError(target, err)
	}
	m.seq++
	id := fmt.Sprintf("m%d", m.seq)
	m.deliveries = append(m.deliveries, delivery{target: target, id: id, msg: msg})
	return id, nil
}

func (m *fakeMessenger) Retract(ctx context.Context, target, deliveryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retracted = append(m.retracted, target+"/"+deliveryID)
	return nil
}

func (m *fakeMessenger) Acknowledge(ctx context.Context, callbackID, text string, alert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acks = append(m.acks, ack{callbackID: callbackID, text: text, alert: alert})
	return nil
}

func (m *fakeMessenger) fail(target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor == nil {
		m.failFor = map[string]error{}
	}
	m.failFor[target] = errors.New("Forbidden: bot was blocked by the user")
}

func (m *fakeMessenger) to(target string) []delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []delivery
	for _, d := range m.deliveries {
		if d.target == target {
			out = append(out, d)
		}
	}
	return out
}

func (m *fakeMessenger) last(t *testing.T, target string) delivery {
	t.Helper()
	ds := m.to(target)
	if len(ds) == 0 {
		t.Fatalf("nothing delivered to %s", target)
	}
	return ds[len(ds)-1]
}

func (m *fakeMessenger) lastAck(t *testing.T) ack {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.acks) == 0 {
		t.Fatal("no callback acknowledged")
	}
	return m.acks[len(m.acks)-1]
}

func hasButton(msg transport.Message, data string) bool {
	for _, row := range msg.Keyboard {
		for _, b := range row {
			if b.Data == data {
				return true
			}
		}
	}
	return false
}

type memErrorLog struct {
	mu      sync.Mutex
	entries []domain.ErrorEntry
}

func (l *memErrorLog) Append(ctx context.Context, e domain.ErrorEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *memErrorLog) Recent(ctx context.Context, n int) ([]domain.ErrorEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.ErrorEntry(nil), l.entries...), nil
}

func (l *memErrorLog) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	return nil
}

func (l *memErrorLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type fixture struct {
	bot     *Bot
	msgr    *fakeMessenger
	errs    *memErrorLog
	now     time.Time
	friends *service.FriendsService
	gallery *service.GalleryService
	chat    *service.ChatService
	admin   *service.AdminService
	seq     int
}

const adminID = "900"

var handles = map[string]string{"100": "alice", "200": "bob", "300": "carol", adminID: "root"}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(context.Background(), store.NewMemoryBackend(nil), store.Options{Shards: 8})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	f := &fixture{
		msgr: &fakeMessenger{},
		errs: &memErrorLog{},
		now:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	identity := &service.IdentityService{Store: st, Now: clock}
	f.friends = &service.FriendsService{Store: st, Now: clock}
	f.gallery = &service.GalleryService{
		Store:  st,
		Errors: f.errs,
		Now:    clock,
		Sleep:  func(ctx context.Context, d time.Duration) error { return nil },
	}
	f.chat = &service.ChatService{Store: st, Now: clock}
	f.admin = &service.AdminService{Store: st, Errors: f.errs, Now: clock}

	f.bot, err = New(Options{
		Messenger: f.msgr,
		Identity:  identity,
		Friends:   f.friends,
		Gallery:   f.gallery,
		Chat:      f.chat,
		Admin:     f.admin,
		AdminIDs:  []string{adminID},
		Shards:    4,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return f
}

func (f *fixture) event(kind transport.EventKind, user string) transport.Event {
	f.now = f.now.Add(time.Minute)
	return transport.Event{Kind: kind, UserID: user, Handle: handles[user]}
}

func (f *fixture) command(user, cmd string) {
	ev := f.event(transport.EventCommand, user)
	ev.Command = cmd
	f.bot.Handle(context.Background(), ev)
}

func (f *fixture) press(user, data string) {
	f.seq++
	ev := f.event(transport.EventButton, user)
	ev.Data = data
	ev.CallbackID = fmt.Sprintf("cb%d", f.seq)
	ev.MessageID = "screen"
	f.bot.Handle(context.Background(), ev)
}

func (f *fixture) send(user string, c transport.Content) {
	ev := f.event(transport.EventContent, user)
	ev.Content = c
	f.bot.Handle(context.Background(), ev)
}

func (f *fixture) text(user, s string) {
	f.send(user, transport.Content{Kind: domain.ContentText, Text: s})
}

func (f *fixture) befriend(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.friends.SendInvite(ctx, a, handles[b]); err != nil {
		t.Fatalf("SendInvite: %v", err)
	}
	if _, err := f.friends.AcceptInvite(ctx, b, a); err != nil {
		t.Fatalf("AcceptInvite: %v", err)
	}
}

func (f *fixture) startChat(t *testing.T, a, b string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.chat.Request(ctx, a, b); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if _, err := f.chat.Accept(ctx, b, a); err != nil {
		t.Fatalf("Accept: %v", err)
	}
}

func TestStartShowsMainMenu(t *testing.T) {
	f := newFixture(t)
	f.command("100", "start")
	f.command(adminID, "start")

	user := f.msgr.last(t, "100").msg
	if !strings.Contains(user.Content.Text, "Choose an action") || !hasButton(user, actGallery) {
		t.Fatalf("unexpected menu: %+v", user)
	}
	if hasButton(user, actAdmin) {
		t.Fatal("admin button shown to a regular user")
	}
	if !hasButton(f.msgr.last(t, adminID).msg, actAdmin) {
		t.Fatal("admin button missing for admin")
	}
}

func TestInviteByButtonsMakesFriends(t *testing.T) {
	f := newFixture(t)
	f.command("100", "start")
	f.command("200", "start")

	f.press("100", actAddFriend)
	if got := f.bot.Stage("100"); got != flow.AwaitingFriendHandle {
		t.Fatalf("stage = %s", got)
	}
	f.text("100", "@Bob")

	inv := f.msgr.last(t, "200").msg
	if !hasButton(inv, actInviteAccept+":100") {
		t.Fatalf("invite lacks accept button: %+v", inv)
	}
	if !strings.Contains(f.msgr.last(t, "100").msg.Content.Text, "Invite sent to @bob") {
		t.Fatalf("sender reply = %q", f.msgr.last(t, "100").msg.Content.Text)
	}

	f.press("200", actInviteAccept+":100")
	friends, err := f.friends.Friends(context.Background(), "100")
	if err != nil || len(friends) != 1 || friends[0].ID != "200" {
		t.Fatalf("friends = %+v, %v", friends, err)
	}
	if !strings.Contains(f.msgr.last(t, "100").msg.Content.Text, "now friends") {
		t.Fatalf("sender not told about acceptance")
	}
	if a := f.msgr.lastAck(t); a.alert {
		t.Fatalf("accept acknowledged with alert %q", a.text)
	}
}

func TestStartShowsPendingInvite(t *testing.T) {
	f := newFixture(t)
	f.command("100", "start")
	f.command("200", "start")
	if _, err := f.friends.SendInvite(context.Background(), "100", "bob"); err != nil {
		t.Fatalf("SendInvite: %v", err)
	}
	f.command("200", "start")
	if !hasButton(f.msgr.last(t, "200").msg, actInviteDecline+":100") {
		t.Fatal("pending invite not shown on /start")
	}
}

func TestAddItemFlowNotifiesFriend(t *testing.T) {
	f := newFixture(t)
	f.command("100", "start")
	f.command("200", "start")
	f.befriend(t, "100", "200")

	f.press("100", actAddItem+":200")
	f.text("100", "Sunset")
	if got := f.bot.Stage("100"); got != flow.AwaitingItemComment {
		t.Fatalf("stage = %s", got)
	}
	if !hasButton(f.msgr.last(t, "100").msg, actSkipComment+":200") {
		t.Fatal("comment prompt lacks skip button")
	}
	f.press("100", actSkipComment+":200")
	if got := f.bot.Stage("100"); got != flow.AwaitingItemContent {
		t.Fatalf("stage after skip = %s", got)
	}
	f.send("100", transport.Content{Kind: domain.ContentPhoto, Handle: "photo-1"})

	if got := f.bot.Stage("100"); got != flow.None {
		t.Fatalf("stage after upload = %s", got)
	}
	items, err := f.gallery.ListItems(context.Background(), "200", "100", service.SortInsertion)
	if err != nil || len(items) != 1 {
		t.Fatalf("items = %+v, %v", items, err)
	}
	if items[0].Name != "Sunset" || items[0].Description != "" || items[0].AddedBy != "alice" {
		t.Fatalf("item = %+v", items[0])
	}

	notice := f.msgr.last(t, "200").msg
	if notice.Content.Kind != domain.ContentPhoto || notice.Content.Handle != "photo-1" {
		t.Fatalf("friend preview = %+v", notice.Content)
	}
	if !strings.Contains(notice.Content.Text, "Sunset") || !hasButton(notice, actView+":100") {
		t.Fatalf("friend preview caption = %q", notice.Content.Text)
	}
}

func TestInvalidInputRepromptsSameStage(t *testing.T) {
	f := newFixture(t)
	f.command("100", "start")
	f.command("200", "start")
	f.befriend(t, "100", "200")

	f.press("100", actAddItem+":200")
	f.text("100", strings.Repeat("x", domain.MaxItemNameLen+1))

	if got := f.bot.Stage("100"); got != flow.AwaitingItemName {
		t.Fatalf("stage = %s", got)
	}
	reply := f.msgr.last(t, "100").msg.Content.Text
	if !strings.Contains(reply, "must be 25 characters or less") || !strings.Contains(reply, "Send a name") {
		t.Fatalf("reply = %q", reply)
	}

	// Media where text is expected is refused the same way.
	f.send("100", transport.Content{Kind: domain.ContentPhoto, Handle: "p"})
	if got := f.bot.Stage("100"); got != flow.AwaitingItemName {
		t.Fatalf("stage after media = %s", got)
	}
}

func TestCancelCommandReturnsToNone(t *testing.T) {
	f := newFixture(t)
	f.command("100", "start")
	f.press("100", actAddFriend)
	f.command("100", "cancel")
	if got := f.bot.Stage("100"); got != flow.None {
		t.Fatalf("stage = %s", got)
	}
	if f.msgr.last(t, "100").msg.Content.Text != textCancelled {
		t.Fatal("cancel not confirmed")
	}
}

func TestFlowInputIsNotRelayed(t *testing.T) {
	f := newFixture(t)
	f.command("100", "start")
	f.command("200", "start")
	f.befriend(t, "100", "200")
	f.startChat(t, "100", "200")

	before := len(f.msgr.to("200"))
	f.press("100", actAddItem+":200")
	f.text("100", "Holiday")

	if got := len(f.msgr.to("200")); got != before {
		t.Fatalf("flow input relayed: %d deliveries to partner, want %d", got, before)
	}
	if got := f.bot.Stage("100"); got != flow.AwaitingItemComment {
		t.Fatalf("stage = %s", got)
	}
}

func TestChatHandshakeAndRelay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.command("100", "start")
	f.command("200", "start")
	f.befriend(t, "100", "200")

	f.press("100", actChat+":200")
	req := f.msgr.last(t, "200")
	if !hasButton(req.msg, actChatAccept+":100") {
		t.Fatalf("request lacks accept: %+v", req.msg)
	}
	out, ok, err := f.chat.Outgoing(ctx, "100")
	if err != nil || !ok || out.DeliveryID != req.id {
		t.Fatalf("outgoing = %+v %v %v, want delivery %s", out, ok, err, req.id)
	}

	f.press("200", actChatAccept+":100")
	if p, ok, _ := f.chat.Partner(ctx, "100"); !ok || p != "200" {
		t.Fatalf("partner = %q %v", p, ok)
	}

	f.text("100", "hi <b>there</b>")
	got := f.msgr.last(t, "200").msg
	if !strings.Contains(got.Content.Text, "hi &lt;b&gt;there&lt;/b&gt;") {
		t.Fatalf("relayed text = %q", got.Content.Text)
	}
	if !hasButton(got, actChatEnd+":100") {
		t.Fatal("relayed message lacks end chat control")
	}

	f.send("200", transport.Content{Kind: domain.ContentVoice, Handle: "voice-1"})
	if v := f.msgr.last(t, "100").msg; v.Content.Handle != "voice-1" || !hasButton(v, actChatEnd+":200") {
		t.Fatalf("relayed voice = %+v", v)
	}

	f.press("200", actChatEnd+":100")
	if _, ok, _ := f.chat.Partner(ctx, "100"); ok {
		t.Fatal("session still active after end")
	}
	if !strings.Contains(f.msgr.last(t, "100").msg.Content.Text, "ended the chat") {
		t.Fatal("partner not told about end")
	}
}

func TestChatCancelRetractsNotification(t *testing.T) {
	f := newFixture(t)
	f.command("100", "start")
	f.command("200", "start")
	f.befriend(t, "100", "200")

	f.press("100", actChat+":200")
	req := f.msgr.last(t, "200")
	f.press("100", actChatCancel+":200")

	if len(f.msgr.retracted) != 1 || f.msgr.retracted[0] != "200/"+req.id {
		t.Fatalf("retracted = %v, want 200/%s", f.msgr.retracted, req.id)
	}
	if _, ok, _ := f.chat.Outgoing(context.Background(), "100"); ok {
		t.Fatal("request survived cancel")
	}

	// The stale accept button now reports the request as gone.
	f.press("200", actChatAccept+":100")
	if a := f.msgr.lastAck(t); !a.alert || !strings.Contains(a.text, "no longer valid") {
		t.Fatalf("ack = %+v", a)
	}
}

func TestRelayFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	f.command("100", "start")
	f.command("200", "start")
	f.befriend(t, "100", "200")
	f.startChat(t, "100", "200")
	f.msgr.fail("200")

	f.text("100", "are you there?")

	if f.msgr.last(t, "100").msg.Content.Text != textRelayFailed {
		t.Fatalf("sender reply = %q", f.msgr.last(t, "100").msg.Content.Text)
	}
	if _, ok, _ := f.chat.Partner(context.Background(), "100"); !ok {
		t.Fatal("failed relay ended the session")
	}
	if f.errs.len() == 0 {
		t.Fatal("relay failure not recorded")
	}
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.command("100", "start")
	f.command("200", "start")
	if _, err := f.friends.SendInvite(ctx, "100", "bob"); err != nil {
		t.Fatalf("SendInvite: %v", err)
	}
	f.msgr.fail("100")

	f.press("200", actInviteAccept+":100")

	if _, err := f.friends.Friend(ctx, "100", "200"); err != nil {
		t.Fatalf("friendship rolled back: %v", err)
	}
	if f.errs.len() == 0 {
		t.Fatal("notification failure not recorded")
	}
}

func TestStaleDeleteButtonDoesNotHitNeighbour(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.command("100", "start")
	f.command("200", "start")
	f.befriend(t, "100", "200")
	for _, name := range []string{"first", "second"} {
		if _, err := f.gallery.AddItem(ctx, "100", "200", service.NewItem{Kind: domain.ContentPhoto, Handle: name, Name: name}); err != nil {
			t.Fatalf("AddItem: %v", err)
		}
	}
	items, _ := f.gallery.ListItems(ctx, "100", "200", service.SortInsertion)
	data := fmt.Sprintf("%s:200:0:%s", actDeleteOK, items[0].ID)

	f.press("100", data)
	f.press("100", data)

	left, _ := f.gallery.ListItems(ctx, "100", "200", service.SortInsertion)
	if len(left) != 1 || left[0].ID != items[1].ID {
		t.Fatalf("left = %+v", left)
	}
	if a := f.msgr.lastAck(t); !a.alert || !strings.Contains(a.text, "no longer exists") {
		t.Fatalf("ack = %+v", a)
	}
}

func TestBannedUserIsRefused(t *testing.T) {
	f := newFixture(t)
	f.command("100", "start")
	if _, err := f.admin.ToggleBan(context.Background(), "100"); err != nil {
		t.Fatalf("ToggleBan: %v", err)
	}
	before := len(f.msgr.to("100"))

	f.command("100", "start")
	ds := f.msgr.to("100")
	if len(ds) != before+1 || ds[len(ds)-1].msg.Content.Text != textBanned {
		t.Fatalf("banned user got %+v", ds[before:])
	}

	f.press("100", actGallery)
	if a := f.msgr.lastAck(t); a.text != textBanned || !a.alert {
		t.Fatalf("ack = %+v", a)
	}
}

func TestAdminActionsRequireAdmin(t *testing.T) {
	f := newFixture(t)
	f.command("100", "start")

	f.press("100", actAdminStats)
	if a := f.msgr.lastAck(t); a.text != textAdminsOnly || !a.alert {
		t.Fatalf("ack = %+v", a)
	}
	f.command("100", "admin")
	if f.msgr.last(t, "100").msg.Content.Text != textAdminsOnly {
		t.Fatal("/admin not refused")
	}
}

func TestAdminBroadcastSkipsBanned(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"100", "200", "300", adminID} {
		f.command(id, "start")
	}
	if _, err := f.admin.ToggleBan(context.Background(), "300"); err != nil {
		t.Fatalf("ToggleBan: %v", err)
	}
	before := len(f.msgr.to("300"))

	f.press(adminID, actAdminBroadcast)
	if got := f.bot.Stage(adminID); got != flow.AwaitingBroadcastPayload {
		t.Fatalf("stage = %s", got)
	}
	f.text(adminID, "maintenance tonight")

	for _, id := range []string{"100", "200"} {
		if got := f.msgr.last(t, id).msg.Content.Text; got != "📢 maintenance tonight" {
			t.Fatalf("%s got %q", id, got)
		}
	}
	if len(f.msgr.to("300")) != before {
		t.Fatal("banned user received the broadcast")
	}
	if !strings.Contains(f.msgr.last(t, adminID).msg.Content.Text, "3 of 3 delivered") {
		t.Fatalf("report = %q", f.msgr.last(t, adminID).msg.Content.Text)
	}
}

func TestAdminBanFlow(t *testing.T) {
	f := newFixture(t)
	f.command("100", "start")
	f.command(adminID, "start")

	f.press(adminID, actAdminBan)
	f.text(adminID, "100")

	banned, err := f.admin.Banned(context.Background())
	if err != nil || len(banned) != 1 || banned[0] != "100" {
		t.Fatalf("banned = %v, %v", banned, err)
	}
	if got := f.bot.Stage(adminID); got != flow.None {
		t.Fatalf("stage = %s", got)
	}
}

func TestExportSendsEveryItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.command("100", "start")
	f.command("200", "start")
	f.befriend(t, "100", "200")
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("item%d", i)
		if _, err := f.gallery.AddItem(ctx, "200", "100", service.NewItem{Kind: domain.ContentDocument, Handle: name, Name: name}); err != nil {
			t.Fatalf("AddItem: %v", err)
		}
	}
	before := len(f.msgr.to("100"))

	f.press("100", actExport+":200")

	ds := f.msgr.to("100")[before:]
	if len(ds) != 4 {
		t.Fatalf("deliveries = %d, want 3 items and a report", len(ds))
	}
	if !strings.Contains(ds[3].msg.Content.Text, "3 of 3") {
		t.Fatalf("report = %q", ds[3].msg.Content.Text)
	}
	if a := f.msgr.lastAck(t); a.text != textExportStarted {
		t.Fatalf("ack = %+v", a)
	}
}
