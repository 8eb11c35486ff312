package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boxing-locker-go/pkg/token"
	"boxing-locker-go/pkg/voice"
)

type memoryTicketRepo struct {
	mu   sync.Mutex
	used map[string]time.Duration
}

func (r *memoryTicketRepo) Consume(_ context.Context, ticketID string, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.used == nil {
		r.used = make(map[string]time.Duration)
	}
	if _, ok := r.used[ticketID]; ok {
		return false, nil
	}
	r.used[ticketID] = ttl
	return true, nil
}

type fakePlanStore struct {
	objectName string
	filename   string
	content    []byte
	err        error
}

func (s *fakePlanStore) PutPlan(_ context.Context, objectName, filename string, content []byte) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.objectName, s.filename, s.content = objectName, filename, content
	return "https://files.example/" + objectName, nil
}

type staticFAQ struct {
	content string
	err     error
}

func (f staticFAQ) Load() (string, error) { return f.content, f.err }

func newTestVoiceService(plans PlanStore, faq FAQService, connect SessionFactory) (VoiceService, *memoryTicketRepo) {
	repo := &memoryTicketRepo{}
	return NewVoiceService(token.NewVoiceTicketManager("secret", 10), repo, faq, connect, plans, "gemini-live"), repo
}

func TestVoiceService_TicketIsSingleUse(t *testing.T) {
	svc, repo := newTestVoiceService(nil, staticFAQ{}, nil)
	ctx := context.Background()

	ticket, err := svc.IssueTicket(ctx)
	require.NoError(t, err)
	assert.Equal(t, "models/gemini-live", ticket.Model)

	require.NoError(t, svc.RedeemTicket(ctx, ticket.Token))
	assert.ErrorIs(t, svc.RedeemTicket(ctx, ticket.Token), token.ErrTicketUsed)

	require.Len(t, repo.used, 1)
	for _, ttl := range repo.used {
		assert.True(t, ttl > 9*time.Minute && ttl <= 10*time.Minute, "ttl %s", ttl)
	}

	assert.ErrorIs(t, svc.RedeemTicket(ctx, "garbage"), ErrInvalidTicket)
}

func TestQualifiedModelName(t *testing.T) {
	assert.Equal(t, "models/x", QualifiedModelName("x"))
	assert.Equal(t, "models/x", QualifiedModelName("models/x"))
	assert.Equal(t, "", QualifiedModelName(""))
}

func TestVoiceService_GeneratePlan(t *testing.T) {
	store := &fakePlanStore{}
	svc, _ := newTestVoiceService(store, staticFAQ{}, nil)

	artifact, err := svc.GeneratePlan(context.Background(), voice.PlanRequest{
		Title:     "Footwork Plan",
		Summary:   "Move your feet.",
		KeyPoints: []string{"Stay on the balls of your feet"},
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(store.objectName, "plans/"))
	assert.True(t, strings.HasSuffix(store.objectName, ".md"))
	assert.Equal(t, "footwork-plan.md", store.filename)
	assert.Contains(t, string(store.content), "# Footwork Plan")
	assert.Equal(t, "Footwork Plan", artifact.Title)
	assert.Equal(t, "https://files.example/"+store.objectName, artifact.URL)
}

func TestVoiceService_GeneratePlanFailures(t *testing.T) {
	svc, _ := newTestVoiceService(nil, staticFAQ{}, nil)
	_, err := svc.GeneratePlan(context.Background(), voice.PlanRequest{Title: "x"})
	assert.Error(t, err)

	svc, _ = newTestVoiceService(&fakePlanStore{err: errors.New("bucket missing")}, staticFAQ{}, nil)
	_, err = svc.GeneratePlan(context.Background(), voice.PlanRequest{Title: "x"})
	assert.Error(t, err)
}

func TestVoiceService_OpenSessionInstruction(t *testing.T) {
	var instruction string
	connect := func(_ context.Context, systemInstruction string) (voice.LiveSession, error) {
		instruction = systemInstruction
		return nil, nil
	}

	svc, _ := newTestVoiceService(nil, staticFAQ{content: strings.Repeat("f", 500)}, connect)
	_, err := svc.OpenSession(context.Background())
	require.NoError(t, err)
	assert.Contains(t, instruction, "Freya Mills")
	assert.Contains(t, instruction, "Background: "+strings.Repeat("f", 400))
	assert.NotContains(t, instruction, strings.Repeat("f", 401))

	svc, _ = newTestVoiceService(nil, staticFAQ{err: ErrFAQUnavailable}, connect)
	_, err = svc.OpenSession(context.Background())
	require.NoError(t, err)
	assert.Contains(t, instruction, voiceFallbackBackground)

	failing := func(context.Context, string) (voice.LiveSession, error) { return nil, errors.New("quota") }
	svc, _ = newTestVoiceService(nil, staticFAQ{}, failing)
	_, err = svc.OpenSession(context.Background())
	assert.Error(t, err)
}

func TestFAQService_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faq.md")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("é", MaxFAQChars+100)), 0o644))

	content, err := NewFAQService(path).Load()
	require.NoError(t, err)
	assert.Equal(t, MaxFAQChars, len([]rune(content)))

	_, err = NewFAQService(filepath.Join(dir, "missing.md")).Load()
	assert.ErrorIs(t, err, ErrFAQUnavailable)
}
