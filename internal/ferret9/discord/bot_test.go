package discord

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/f9global/ferret9/common/retry"
	"github.com/f9global/ferret9/internal/ferret9/activity"
	"github.com/f9global/ferret9/internal/ferret9/audit"
	"github.com/f9global/ferret9/internal/ferret9/chat"
	"github.com/f9global/ferret9/internal/ferret9/commands"
	"github.com/f9global/ferret9/internal/ferret9/llm"
	"github.com/f9global/ferret9/internal/ferret9/memory"
)

const botID = "999"

type sent struct {
	kind    string // reply, send, typing, respond, edit, followup
	channel string
	content string
	ref     *discordgo.MessageReference
	resp    *discordgo.InteractionResponse
	embeds  []*discordgo.MessageEmbed
}

type fakeSession struct {
	mu      sync.Mutex
	calls   []sent
	members [][]*discordgo.Member
	afters  []string
	users   map[string]*discordgo.User
	sendErr error
}

func (f *fakeSession) record(s sent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
}

func (f *fakeSession) of(kind string) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, c := range f.calls {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeSession) Open() error           { return nil }
func (f *fakeSession) Close() error          { return nil }
func (f *fakeSession) AddHandler(any) func() { return func() {} }
func (f *fakeSession) ChannelTyping(ch string, _ ...discordgo.RequestOption) error {
	f.record(sent{kind: "typing", channel: ch})
	return nil
}

func (f *fakeSession) User(id string, _ ...discordgo.RequestOption) (*discordgo.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, errors.New("unknown user")
}

func (f *fakeSession) GuildMembers(_ string, after string, _ int, _ ...discordgo.RequestOption) ([]*discordgo.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.afters = append(f.afters, after)
	if len(f.members) == 0 {
		return nil, nil
	}
	page := f.members[0]
	f.members = f.members[1:]
	return page, nil
}

func (f *fakeSession) ChannelMessageSend(ch, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.record(sent{kind: "send", channel: ch, content: content})
	return &discordgo.Message{}, f.sendErr
}

func (f *fakeSession) ChannelMessageSendReply(ch, content string, ref *discordgo.MessageReference, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.record(sent{kind: "reply", channel: ch, content: content, ref: ref})
	return &discordgo.Message{}, f.sendErr
}

func (f *fakeSession) ChannelMessageSendEmbed(ch string, e *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.record(sent{kind: "embed", channel: ch, embeds: []*discordgo.MessageEmbed{e}})
	return &discordgo.Message{}, nil
}

func (f *fakeSession) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.record(sent{kind: "respond", resp: resp})
	return nil
}

func (f *fakeSession) InteractionResponseEdit(_ *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s := sent{kind: "edit"}
	if edit.Content != nil {
		s.content = *edit.Content
	}
	if edit.Embeds != nil {
		s.embeds = *edit.Embeds
	}
	f.record(s)
	return &discordgo.Message{}, nil
}

func (f *fakeSession) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.record(sent{kind: "followup", content: data.Content})
	return &discordgo.Message{}, nil
}

func (f *fakeSession) ApplicationCommandBulkOverwrite(_, _ string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	return cmds, nil
}

type fakeGenerator struct {
	mu    sync.Mutex
	reqs  []llm.Request
	reply string
	err   error
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reqs = append(g.reqs, req)
	return g.reply, g.err
}

type fakeActivity struct {
	entries  []activity.Entry
	sessions []activity.Session
	active   map[string]*activity.Session
	err      error
	days     []string
}

func (f *fakeActivity) Record(context.Context, activity.Entry) error { return f.err }

func (f *fakeActivity) Activities(_ context.Context, _ string, day string) ([]activity.Entry, error) {
	f.days = append(f.days, day)
	return f.entries, f.err
}

func (f *fakeActivity) Sessions(context.Context, string, string) ([]activity.Session, error) {
	return f.sessions, f.err
}

func (f *fakeActivity) ActiveSession(_ context.Context, userID string) (*activity.Session, error) {
	if s, ok := f.active[userID]; ok {
		return s, nil
	}
	return nil, activity.ErrNotFound
}

func (f *fakeActivity) Dump(context.Context) (*activity.Dump, error) {
	return &activity.Dump{Logs: f.entries, Sessions: f.sessions}, f.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingNotifier) Notify(_ context.Context, evt audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingNotifier) kinds() []audit.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Kind, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

var testNow = time.Date(2026, 3, 4, 2, 0, 0, 0, time.UTC) // 10:00 in UTC+8

type harness struct {
	bot      *Bot
	session  *fakeSession
	gen      *fakeGenerator
	store    *memory.Store
	activity *fakeActivity
	notes    *recordingNotifier
}

func newHarness(t *testing.T, chatOpts chat.Options) *harness {
	t.Helper()
	h := &harness{
		session:  &fakeSession{users: map[string]*discordgo.User{"42": {ID: "42", Username: "ana"}}},
		gen:      &fakeGenerator{reply: "hi there"},
		store:    memory.New(memory.Config{}),
		activity: &fakeActivity{},
		notes:    &recordingNotifier{},
	}
	if chatOpts.Preamble == "" {
		chatOpts.Preamble = "SYS"
	}
	svc := chat.NewService(h.store, h.gen, nil, chatOpts, nil)
	h.bot = New(h.session, svc, h.activity, h.notes, Options{
		BotName: "Ferret9",
		Roles:   activity.Roles{Working: "r-work", OnBreak: "r-break"},
		Clock:   activity.ManilaClock,
		Retry:   retry.Policy{Attempts: 1},
		Now:     func() time.Time { return testNow },
	}, nil)
	h.bot.setBotID(botID)
	return h
}

func mention(content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        "m1",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   content,
		Author:    &discordgo.User{ID: "7", Username: "bob"},
		Mentions:  []*discordgo.User{{ID: botID}},
	}
}

func TestHandleMessage_IgnoresBotsAndUnmentioned(t *testing.T) {
	h := newHarness(t, chat.Options{})

	m := mention("<@999> hi")
	m.Author.Bot = true
	h.bot.HandleMessage(context.Background(), m)

	m = mention("hi")
	m.Mentions = nil
	h.bot.HandleMessage(context.Background(), m)

	assert.Empty(t, h.session.calls)
	assert.Empty(t, h.gen.reqs)
	assert.Empty(t, h.notes.events)
}

func TestHandleMessage_RepliesWithHistory(t *testing.T) {
	h := newHarness(t, chat.Options{})

	h.bot.HandleMessage(context.Background(), mention("<@!999> what is Go?"))

	require.Len(t, h.session.of("typing"), 1)
	replies := h.session.of("reply")
	require.Len(t, replies, 1)
	assert.Equal(t, "hi there", replies[0].content)
	require.NotNil(t, replies[0].ref)
	assert.Equal(t, "m1", replies[0].ref.MessageID)

	require.Len(t, h.gen.reqs, 1)
	msgs := h.gen.reqs[0].Messages
	assert.Equal(t, "bob: what is Go?", msgs[len(msgs)-1].Content)
	assert.Len(t, h.store.Read("c1"), 3)

	assert.Equal(t, []audit.Kind{audit.KindMention}, h.notes.kinds())
	assert.Equal(t, []audit.Field{{Name: "Message", Value: "<@!999> what is Go?"}}, h.notes.events[0].Fields)
}

func TestHandleMessage_BareMentionGreets(t *testing.T) {
	h := newHarness(t, chat.Options{})

	h.bot.HandleMessage(context.Background(), mention("<@999>"))

	replies := h.session.of("reply")
	require.Len(t, replies, 1)
	assert.Equal(t, commands.GreetingText("Ferret9"), replies[0].content)
	assert.Empty(t, h.gen.reqs)
}

func TestHandleMessage_ImageOnly(t *testing.T) {
	h := newHarness(t, chat.Options{})
	m := mention("<@999>")
	m.Attachments = []*discordgo.MessageAttachment{
		{URL: "https://cdn/a.png", ContentType: "image/png"},
		{URL: "https://cdn/notes.txt", ContentType: "text/plain"},
	}

	h.bot.HandleMessage(context.Background(), m)

	require.Len(t, h.gen.reqs, 1)
	assert.Equal(t, []string{"https://cdn/a.png"}, h.gen.reqs[0].Images)
	assert.Len(t, h.session.of("reply"), 1)
}

func TestHandleMessage_SplitsLongReplies(t *testing.T) {
	h := newHarness(t, chat.Options{MaxFragment: 40})
	h.gen.reply = strings.Repeat("word ", 30)

	h.bot.HandleMessage(context.Background(), mention("<@999> tell me a story"))

	replies := h.session.of("reply")
	sends := h.session.of("send")
	require.Len(t, replies, 1)
	require.NotEmpty(t, sends)
	assert.True(t, strings.HasPrefix(replies[0].content, "[Part 1/"))
	assert.True(t, strings.HasPrefix(sends[0].content, "[Part 2/"))
}

func TestHandleMessage_GenerationFailure(t *testing.T) {
	h := newHarness(t, chat.Options{})
	h.gen.err = &llm.GenerationError{Backend: "fake", StatusCode: 500, Err: errors.New("boom")}

	h.bot.HandleMessage(context.Background(), mention("<@999> hi"))

	replies := h.session.of("reply")
	require.Len(t, replies, 1)
	assert.Equal(t, llm.FallbackMessage, replies[0].content)
	assert.Equal(t, []audit.Kind{audit.KindMention, audit.KindError}, h.notes.kinds())
}

func TestHandleMessage_RateLimited(t *testing.T) {
	h := newHarness(t, chat.Options{})
	limiter := llm.NewRateLimiter(1, time.Minute)
	h.bot.chat = chat.NewService(h.store, h.gen, limiter, chat.Options{Preamble: "SYS"}, nil)

	h.bot.HandleMessage(context.Background(), mention("<@999> one"))
	h.bot.HandleMessage(context.Background(), mention("<@999> two"))

	replies := h.session.of("reply")
	require.Len(t, replies, 2)
	assert.Equal(t, llm.RateLimitedMessage, replies[1].content)
	assert.Len(t, h.gen.reqs, 1)
}

func TestHandleMessage_ResetClearsHistory(t *testing.T) {
	h := newHarness(t, chat.Options{})
	h.bot.HandleMessage(context.Background(), mention("<@999> hello"))
	require.Equal(t, 1, h.store.Len())

	h.bot.HandleMessage(context.Background(), mention("<@999> reset"))

	assert.Equal(t, 0, h.store.Len())
	replies := h.session.of("reply")
	assert.Equal(t, msgReset, replies[len(replies)-1].content)
	assert.Contains(t, h.notes.kinds(), audit.KindReset)
}

func TestHandleMessage_ReportCommand(t *testing.T) {
	h := newHarness(t, chat.Options{})

	h.bot.HandleMessage(context.Background(), mention("<@999> report <@42> today"))

	assert.Equal(t, []string{"2026-03-04"}, h.activity.days)
	replies := h.session.of("reply")
	require.Len(t, replies, 1)
	assert.Equal(t, activity.EmptyReport("ana", "today"), replies[0].content)
	assert.Empty(t, h.gen.reqs)
}

func TestHandleMessage_ScanTables(t *testing.T) {
	h := newHarness(t, chat.Options{})
	h.activity.entries = []activity.Entry{{UserID: "42", ActivityType: activity.TypeSignIn, Timestamp: testNow}}

	h.bot.HandleMessage(context.Background(), mention("<@999> scan tables"))

	replies := h.session.of("reply")
	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0].content, "```"))
}

func command(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.Interaction {
	return &discordgo.Interaction{
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "c1",
		GuildID:   "g1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "7", Username: "bob"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name:    name,
			Options: opts,
		},
	}
}

func stringOpt(name, value string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  name,
		Type:  discordgo.ApplicationCommandOptionString,
		Value: value,
	}
}

func TestAsk_EmptyIsEphemeral(t *testing.T) {
	h := newHarness(t, chat.Options{})

	h.bot.HandleInteraction(context.Background(), command(CommandAsk))

	responds := h.session.of("respond")
	require.Len(t, responds, 1)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, responds[0].resp.Type)
	assert.Equal(t, msgAskEmpty, responds[0].resp.Data.Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, responds[0].resp.Data.Flags)
	assert.Empty(t, h.gen.reqs)
}

func TestAsk_DefersThenEditsAndFollowsUp(t *testing.T) {
	h := newHarness(t, chat.Options{MaxFragment: 40})
	h.gen.reply = strings.Repeat("word ", 30)

	h.bot.HandleInteraction(context.Background(), command(CommandAsk, stringOpt(optionQuestion, "long answer please")))

	responds := h.session.of("respond")
	require.Len(t, responds, 1)
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, responds[0].resp.Type)

	edits := h.session.of("edit")
	require.Len(t, edits, 1)
	assert.True(t, strings.HasPrefix(edits[0].content, "[Part 1/"))
	assert.NotEmpty(t, h.session.of("followup"))

	require.Len(t, h.notes.events, 1)
	assert.Equal(t, audit.KindQuestion, h.notes.events[0].Kind)
	assert.Equal(t, "long answer please", h.notes.events[0].Fields[0].Value)
}

func TestAsk_ImageOnly(t *testing.T) {
	h := newHarness(t, chat.Options{})
	i := command(CommandAsk, &discordgo.ApplicationCommandInteractionDataOption{
		Name:  optionImage,
		Type:  discordgo.ApplicationCommandOptionAttachment,
		Value: "att1",
	})
	data := i.Data.(discordgo.ApplicationCommandInteractionData)
	data.Resolved = &discordgo.ApplicationCommandInteractionDataResolved{
		Attachments: map[string]*discordgo.MessageAttachment{"att1": {URL: "https://cdn/x.jpg", ContentType: "image/jpeg"}},
	}
	i.Data = data

	h.bot.HandleInteraction(context.Background(), i)

	require.Len(t, h.gen.reqs, 1)
	assert.Equal(t, []string{"https://cdn/x.jpg"}, h.gen.reqs[0].Images)
	require.Len(t, h.notes.events, 1)
	assert.Equal(t, audit.KindImage, h.notes.events[0].Kind)
	assert.Equal(t, msgImageOnly, h.notes.events[0].Fields[0].Value)
}

func TestReportCommand(t *testing.T) {
	h := newHarness(t, chat.Options{})
	i := command(CommandReport,
		&discordgo.ApplicationCommandInteractionDataOption{Name: optionUser, Type: discordgo.ApplicationCommandOptionUser, Value: "42"},
		stringOpt(optionDate, "March 3"),
	)
	data := i.Data.(discordgo.ApplicationCommandInteractionData)
	data.Resolved = &discordgo.ApplicationCommandInteractionDataResolved{
		Users: map[string]*discordgo.User{"42": {ID: "42", Username: "ana"}},
	}
	i.Data = data

	h.bot.HandleInteraction(context.Background(), i)

	assert.Equal(t, []string{"2026-03-03"}, h.activity.days)
	edits := h.session.of("edit")
	require.Len(t, edits, 2)
	assert.Equal(t, "Generating activity report for ana on March 3... This may take a moment.", edits[0].content)
	assert.Equal(t, activity.EmptyReport("ana", "March 3"), edits[1].content)

	require.Len(t, h.notes.events, 1)
	assert.Equal(t, []audit.Field{{Name: "Target User", Value: "ana"}, {Name: "Date", Value: "March 3"}}, h.notes.events[0].Fields)
}

func TestReportCommand_StoreFailure(t *testing.T) {
	h := newHarness(t, chat.Options{})
	h.activity.err = errors.New("dynamo down")

	got := h.bot.report(context.Background(), "42", "ana", "today")
	assert.Equal(t, activity.FailedReport("ana", "today"), got)
}

func TestWhosWorking(t *testing.T) {
	h := newHarness(t, chat.Options{})
	full := make([]*discordgo.Member, memberPage)
	for n := range full {
		full[n] = &discordgo.Member{User: &discordgo.User{ID: "x" + strings.Repeat("0", n%3), Username: "idle"}}
	}
	full[memberPage-1] = &discordgo.Member{User: &discordgo.User{ID: "last", Username: "last"}}
	h.session.members = [][]*discordgo.Member{
		full,
		{{User: &discordgo.User{ID: "42", Username: "ana"}, Nick: "Ana", Roles: []string{"r-work"}}},
	}
	h.activity.active = map[string]*activity.Session{
		"42": {UserID: "42", StartTime: testNow.Add(-time.Hour), Status: activity.StatusWorking},
	}

	h.bot.HandleInteraction(context.Background(), command(CommandWhosWorking))

	assert.Equal(t, []string{"", "last"}, h.session.afters)
	edits := h.session.of("edit")
	require.Len(t, edits, 1)
	require.Len(t, edits[0].embeds, 1)
	e := edits[0].embeds[0]
	assert.Equal(t, rosterTitle, e.Title)
	assert.Equal(t, rosterColor, e.Color)
	assert.Contains(t, e.Description, "🟢 **Ana** - Working")
	assert.Equal(t, "As of 10:00 AM (UTC+8)", e.Footer.Text)
	assert.Equal(t, []audit.Kind{audit.KindRoster}, h.notes.kinds())
}

func TestWhosWorking_Messages(t *testing.T) {
	h := newHarness(t, chat.Options{})

	text, embed, err := h.bot.roster(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, embed)
	assert.Equal(t, msgGuildOnly, text)

	text, _, _ = h.bot.roster(context.Background(), "g1")
	assert.Equal(t, msgNobodySignedIn, text)

	h.bot.opts.Roles = activity.Roles{}
	text, _, _ = h.bot.roster(context.Background(), "g1")
	assert.Equal(t, msgRolesMissing, text)
}

func TestReset_SlashCommand(t *testing.T) {
	h := newHarness(t, chat.Options{})
	h.store.Initialize("c1", "SYS")

	h.bot.HandleInteraction(context.Background(), command(CommandReset))

	assert.Equal(t, 0, h.store.Len())
	edits := h.session.of("edit")
	require.Len(t, edits, 1)
	assert.Equal(t, msgReset, edits[0].content)
}

func TestFit_TruncatesOverTransportLimit(t *testing.T) {
	h := newHarness(t, chat.Options{})
	out := h.bot.fit(strings.Repeat("é", 2500))
	assert.LessOrEqual(t, len([]rune(out)), 2000)
	assert.Equal(t, "short", h.bot.fit("short"))
}

func TestRetryable(t *testing.T) {
	status := func(code int) error {
		return &discordgo.RESTError{Response: &http.Response{StatusCode: code}}
	}
	assert.True(t, retryable(status(http.StatusTooManyRequests)))
	assert.True(t, retryable(status(http.StatusBadGateway)))
	assert.False(t, retryable(status(http.StatusForbidden)))
	assert.False(t, retryable(context.Canceled))
	assert.True(t, retryable(errors.New("connection reset")))

	assert.True(t, retryablePost(status(http.StatusTooManyRequests)))
	assert.True(t, retryablePost(status(http.StatusServiceUnavailable)))
	assert.False(t, retryablePost(status(http.StatusBadRequest)))
	assert.False(t, retryablePost(errors.New("connection reset")))
}

func TestReplyTo_TransportErrorIsNotResent(t *testing.T) {
	h := newHarness(t, chat.Options{})
	h.bot.retry = retry.Policy{Attempts: 3, BaseDelay: time.Millisecond}
	h.session.sendErr = errors.New("connection reset")

	err := h.bot.replyTo(context.Background(), mention("<@999> hi"), []string{"one", "two"})
	require.Error(t, err)
	assert.Len(t, h.session.of("reply"), 1)
	assert.Empty(t, h.session.of("send"))
}

func TestReplyTo_ServerErrorIsRetried(t *testing.T) {
	h := newHarness(t, chat.Options{})
	h.bot.retry = retry.Policy{Attempts: 3, BaseDelay: time.Millisecond}
	h.session.sendErr = &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusBadGateway}}

	err := h.bot.replyTo(context.Background(), mention("<@999> hi"), []string{"one"})
	require.Error(t, err)
	assert.Len(t, h.session.of("reply"), 3)
}

func TestRegisterCommands(t *testing.T) {
	created, err := RegisterCommands(context.Background(), &fakeSession{}, "app", "g1", "Ferret9", nil)
	require.NoError(t, err)
	names := make([]string, 0, len(created))
	for _, c := range created {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{CommandAsk, CommandReport, CommandWhosWorking, CommandReset}, names)
}
