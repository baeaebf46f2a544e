package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"aercd/pkg/ai"
)

type fakeGenerator struct {
	mu       sync.Mutex
	requests []ai.Request
	reply    func(req ai.Request) (string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, req ai.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.reply == nil {
		return "Réponse", nil
	}
	return f.reply(req)
}

func newBridge(t *testing.T, gen ai.TextGenerator, transcripts TranscriptStore) *Bridge {
	t.Helper()
	b, err := New(Config{
		Generator:    gen,
		Transcripts:  transcripts,
		HistoryLimit: 4,
		Timeout:      time.Second,
	})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	return b
}

func TestAskGroundsPromptOnRegistry(t *testing.T) {
	gen := &fakeGenerator{}
	b := newBridge(t, gen, nil)
	reply, err := b.Ask(context.Background(), "", "", "Quelles formations propose la SATIC ?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if reply.Fallback || reply.Reply != "Réponse" || reply.ConversationID == "" || reply.RequestID == "" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	req := gen.requests[0]
	for _, want := range []string{"assistant virtuel de l'AERCD", "Mathématiques Appliquées", "Master Santé Publique", "Consignes"} {
		if !strings.Contains(req.System, want) {
			t.Fatalf("system prompt misses %q", want)
		}
	}
	if req.Prompt != "Quelles formations propose la SATIC ?" || len(req.History) != 0 {
		t.Fatalf("unexpected request %+v", req)
	}
}

func TestAskCarriesBoundedHistory(t *testing.T) {
	gen := &fakeGenerator{reply: func(req ai.Request) (string, error) { return "r:" + req.Prompt, nil }}
	b := newBridge(t, gen, nil)
	ctx := context.Background()
	first, err := b.Ask(ctx, "", "", "q1")
	if err != nil {
		t.Fatalf("ask q1: %v", err)
	}
	for _, q := range []string{"q2", "q3", "q4"} {
		if _, err := b.Ask(ctx, "", first.ConversationID, q); err != nil {
			t.Fatalf("ask %s: %v", q, err)
		}
	}
	last := gen.requests[len(gen.requests)-1]
	if len(last.History) != 4 {
		t.Fatalf("history = %d turns, want 4", len(last.History))
	}
	if last.History[0].Text != "q2" || last.History[3].Role != ai.RoleAssistant || last.History[3].Text != "r:q3" {
		t.Fatalf("unexpected history %+v", last.History)
	}

	transcript, err := b.Transcript(ctx, "", first.ConversationID)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(transcript) != 8 || transcript[7].Content != "r:q4" {
		t.Fatalf("unexpected transcript %+v", transcript)
	}
}

func TestAskWithoutHistory(t *testing.T) {
	gen := &fakeGenerator{}
	b, err := New(Config{Generator: gen, HistoryLimit: -1})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	ctx := context.Background()
	first, err := b.Ask(ctx, "", "", "q1")
	if err != nil {
		t.Fatalf("ask q1: %v", err)
	}
	if _, err := b.Ask(ctx, "", first.ConversationID, "q2"); err != nil {
		t.Fatalf("ask q2: %v", err)
	}
	if got := len(gen.requests[1].History); got != 0 {
		t.Fatalf("history = %d turns, want none", got)
	}
	transcript, err := b.Transcript(ctx, "", first.ConversationID)
	if err != nil || len(transcript) != 4 {
		t.Fatalf("transcript = %d messages, err %v; want 4 stored", len(transcript), err)
	}
}

func TestAskOfflineWithoutGenerator(t *testing.T) {
	b := newBridge(t, nil, nil)
	if b.Online() {
		t.Fatalf("bridge without generator must be offline")
	}
	reply, err := b.Ask(context.Background(), "", "", "Bonjour")
	if err != nil {
		t.Fatalf("offline ask must not fail: %v", err)
	}
	if !reply.Fallback || reply.Reply != OfflineReply {
		t.Fatalf("unexpected offline reply %+v", reply)
	}
}

func TestAskFallsBackOnGeneratorError(t *testing.T) {
	gen := &fakeGenerator{reply: func(ai.Request) (string, error) { return "", errors.New("403 forbidden") }}
	b := newBridge(t, gen, nil)
	reply, err := b.Ask(context.Background(), "", "", "Bonjour")
	if err != nil {
		t.Fatalf("generator errors must not propagate: %v", err)
	}
	if !reply.Fallback || reply.Reply != FallbackReply {
		t.Fatalf("unexpected reply %+v", reply)
	}
}

func TestAskTimesOut(t *testing.T) {
	b, err := New(Config{Generator: blockingGenerator{}, Timeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	reply, err := b.Ask(context.Background(), "", "", "Bonjour")
	if err != nil || !reply.Fallback {
		t.Fatalf("expected fallback after timeout, got %+v %v", reply, err)
	}
}

type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ ai.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestAskValidation(t *testing.T) {
	b := newBridge(t, &fakeGenerator{}, nil)
	if _, err := b.Ask(context.Background(), "", "", "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("err = %v, want ErrEmptyQuestion", err)
	}
	if _, err := b.Ask(context.Background(), "", "", strings.Repeat("é", defaultMaxQuestionLen+1)); !errors.Is(err, ErrQuestionTooLong) {
		t.Fatalf("err = %v, want ErrQuestionTooLong", err)
	}
}

func TestConversationOwnership(t *testing.T) {
	b := newBridge(t, &fakeGenerator{}, nil)
	ctx := context.Background()
	reply, err := b.Ask(ctx, "u-alice", "", "Bonjour")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, err := b.Ask(ctx, "u-bob", reply.ConversationID, "Et moi ?"); !errors.Is(err, ErrConversationForbidden) {
		t.Fatalf("err = %v, want ErrConversationForbidden", err)
	}
	if _, err := b.Transcript(ctx, "", reply.ConversationID); !errors.Is(err, ErrConversationForbidden) {
		t.Fatalf("err = %v, want ErrConversationForbidden", err)
	}
	if _, err := b.Transcript(ctx, "u-alice", "missing"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("err = %v, want ErrConversationNotFound", err)
	}
}

func TestConcurrentSendsAreSerialized(t *testing.T) {
	gen := &fakeGenerator{reply: func(req ai.Request) (string, error) {
		time.Sleep(time.Millisecond)
		return "r:" + req.Prompt, nil
	}}
	b, err := New(Config{Generator: gen, HistoryLimit: 100})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	ctx := context.Background()
	first, err := b.Ask(ctx, "", "", "q0")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	var wg sync.WaitGroup
	for _, q := range []string{"q1", "q2", "q3", "q4", "q5"} {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			if _, err := b.Ask(ctx, "", first.ConversationID, q); err != nil {
				t.Errorf("ask %s: %v", q, err)
			}
		}(q)
	}
	wg.Wait()

	// Each send must see every earlier exchange.
	seen := make(map[int]bool)
	for _, req := range gen.requests {
		seen[len(req.History)] = true
	}
	for n := 0; n <= 10; n += 2 {
		if !seen[n] {
			t.Fatalf("no request saw a history of %d messages: %v", n, seen)
		}
	}
	transcript, err := b.Transcript(ctx, "", first.ConversationID)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(transcript) != 12 {
		t.Fatalf("transcript = %d messages, want 12", len(transcript))
	}
}

func TestRedisTranscripts(t *testing.T) {
	redis := miniredis.RunT(t)
	b := newBridge(t, &fakeGenerator{}, NewRedisTranscripts(redis.Addr(), "", time.Hour))
	ctx := context.Background()
	reply, err := b.Ask(ctx, "u-alice", "", "Bonjour")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	transcript, err := b.Transcript(ctx, "u-alice", reply.ConversationID)
	if err != nil {
		t.Fatalf("transcript: %v", err)
	}
	if len(transcript) != 2 || transcript[0].Content != "Bonjour" {
		t.Fatalf("unexpected transcript %+v", transcript)
	}
	redis.FastForward(2 * time.Hour)
	if _, err := b.Transcript(ctx, "u-alice", reply.ConversationID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expired conversation: err = %v", err)
	}
}

func TestMemoryTranscriptsEvictsOldest(t *testing.T) {
	m := NewMemoryTranscripts(2)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := m.Append(ctx, id, ""); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
		time.Sleep(time.Millisecond)
	}
	if _, ok, _ := m.Owner(ctx, "a"); ok {
		t.Fatalf("oldest conversation should have been evicted")
	}
	if _, ok, _ := m.Owner(ctx, "c"); !ok {
		t.Fatalf("newest conversation must be kept")
	}
}
