package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/vote-initiate-bot/internal/domain"
)

// ----- Fake repo -----

type fakeVoteRepo struct {
	mu sync.Mutex

	live      map[string]*domain.VoteRecord
	created   int
	destroyed []string

	createErr error
	findErr   error
}

func newFakeVoteRepo() *fakeVoteRepo {
	return &fakeVoteRepo{live: map[string]*domain.VoteRecord{}}
}

func (r *fakeVoteRepo) CreateVoteRecord(ctx context.Context, db *gorm.DB, commandID, guildID, channelID, messageID string) (*domain.VoteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	for _, v := range r.live {
		if v.CommandID == commandID && v.GuildID == guildID {
			return nil, errors.New("duplicate live record")
		}
	}
	rec := &domain.VoteRecord{
		ID:            uuid.NewString(),
		CommandID:     commandID,
		GuildID:       guildID,
		PostChannelID: channelID,
		PostMessageID: messageID,
	}
	r.live[rec.ID] = rec
	r.created++
	return rec, nil
}

func (r *fakeVoteRepo) FindVoteRecord(ctx context.Context, db *gorm.DB, commandID string, guildIDs []string) (*domain.VoteRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, v := range r.live {
		if v.CommandID != commandID {
			continue
		}
		for _, g := range guildIDs {
			if v.GuildID == g {
				return v, nil
			}
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeVoteRepo) DestroyVoteRecord(ctx context.Context, db *gorm.DB, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.live[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.live, id)
	r.destroyed = append(r.destroyed, id)
	return nil
}

func (r *fakeVoteRepo) seed(rec *domain.VoteRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[rec.ID] = rec
}

func (r *fakeVoteRepo) liveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

func (r *fakeVoteRepo) destroyedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.destroyed)
}

// ----- Fake platform -----

type sentMessage struct {
	ChannelID string
	Content   string
}

type editedMessage struct {
	ChannelID string
	MessageID string
	Content   string
}

type reactionCall struct {
	MessageID string
	Emoji     string
	UserID    string
}

type fakePlatform struct {
	mu  sync.Mutex
	now func() time.Time

	nextID   int
	messages map[string]*domain.Message
	state    domain.ReactionState
	stateErr error

	guildErr   error
	channelErr error
	sendErr    error
	removeErr  error

	// rejectCancelled makes writes fail on a cancelled context, the way
	// REST calls bound to a request context do.
	rejectCancelled bool

	sends   []sentMessage
	edits   []editedMessage
	adds    []reactionCall
	removes []reactionCall
}

func newFakePlatform(now func() time.Time) *fakePlatform {
	return &fakePlatform{now: now, messages: map[string]*domain.Message{}}
}

func (p *fakePlatform) SelfID() string { return "bot" }

func (p *fakePlatform) SendMessage(ctx context.Context, channelID, content string) (*domain.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rejectCancelled && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if p.sendErr != nil {
		return nil, p.sendErr
	}
	p.nextID++
	msg := &domain.Message{ID: fmt.Sprintf("m%d", p.nextID), ChannelID: channelID, CreatedAt: p.now()}
	p.messages[msg.ID] = msg
	p.sends = append(p.sends, sentMessage{ChannelID: channelID, Content: content})
	return msg, nil
}

func (p *fakePlatform) EditMessage(ctx context.Context, channelID, messageID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rejectCancelled && ctx.Err() != nil {
		return ctx.Err()
	}
	p.edits = append(p.edits, editedMessage{ChannelID: channelID, MessageID: messageID, Content: content})
	return nil
}

func (p *fakePlatform) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rejectCancelled && ctx.Err() != nil {
		return ctx.Err()
	}
	p.adds = append(p.adds, reactionCall{MessageID: messageID, Emoji: emoji})
	return nil
}

func (p *fakePlatform) RemoveReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removes = append(p.removes, reactionCall{MessageID: messageID, Emoji: emoji, UserID: userID})
	return p.removeErr
}

func (p *fakePlatform) ReactionState(ctx context.Context, channelID, messageID, emoji string) (domain.ReactionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.messages[messageID]; !ok {
		return domain.ReactionState{}, fmt.Errorf("message %s: %w", messageID, ErrNotFound)
	}
	return p.state, p.stateErr
}

func (p *fakePlatform) FetchGuild(ctx context.Context, guildID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.guildErr
}

func (p *fakePlatform) FetchTextChannel(ctx context.Context, guildID, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelErr
}

func (p *fakePlatform) FetchMessage(ctx context.Context, channelID, messageID string) (*domain.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.messages[messageID]
	if !ok || m.ChannelID != channelID {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (p *fakePlatform) setState(s domain.ReactionState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *fakePlatform) deleteMessage(id string) {
	p.mu.Lock()
	delete(p.messages, id)
	p.mu.Unlock()
}

func (p *fakePlatform) putMessage(m domain.Message) {
	p.mu.Lock()
	p.messages[m.ID] = &m
	p.mu.Unlock()
}

func (p *fakePlatform) snapshot() (sends []sentMessage, edits []editedMessage, adds, removes []reactionCall) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]sentMessage(nil), p.sends...),
		append([]editedMessage(nil), p.edits...),
		append([]reactionCall(nil), p.adds...),
		append([]reactionCall(nil), p.removes...)
}

// ----- Fake scheduler -----

type fakeJob struct {
	at        time.Time
	fn        func()
	cancelled bool
}

type fakeScheduler struct {
	mu   sync.Mutex
	jobs []*fakeJob
}

func (s *fakeScheduler) ScheduleAt(at time.Time, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := &fakeJob{at: at, fn: fn}
	s.jobs = append(s.jobs, j)
	return func() {
		s.mu.Lock()
		j.cancelled = true
		s.mu.Unlock()
	}
}

func (s *fakeScheduler) last() *fakeJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.jobs) == 0 {
		return nil
	}
	return s.jobs[len(s.jobs)-1]
}

// fire runs the job even if it was cancelled, like a timer that already
// started when cancel was called.
func (s *fakeScheduler) fire(j *fakeJob) { j.fn() }

func (s *fakeScheduler) isCancelled(j *fakeJob) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return j.cancelled
}

// ----- Fake invocation -----

type fakeInvocation struct {
	mu sync.Mutex

	guildID string
	userID  string

	confirm    bool
	confirmErr error
	onConfirm  func()

	prompts []string
	replies []string
	edits   []string
	deleted int
}

func (i *fakeInvocation) GuildID() string { return i.guildID }
func (i *fakeInvocation) UserID() string  { return i.userID }

func (i *fakeInvocation) Reply(ctx context.Context, content string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.replies = append(i.replies, content)
	return nil
}

func (i *fakeInvocation) Confirm(ctx context.Context, prompt string, timeout time.Duration) (bool, error) {
	i.mu.Lock()
	i.prompts = append(i.prompts, prompt)
	hook := i.onConfirm
	i.mu.Unlock()
	if hook != nil {
		hook()
	}
	return i.confirm, i.confirmErr
}

func (i *fakeInvocation) EditReply(ctx context.Context, content string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.edits = append(i.edits, content)
	return nil
}

func (i *fakeInvocation) DeleteReply(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.deleted++
	return nil
}

// ----- Clock -----

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
