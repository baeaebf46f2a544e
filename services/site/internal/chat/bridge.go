// Package chat forwards visitor questions to a text generator, grounded on
// the department registry, and keeps the conversation transcripts.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"aercd/internal/util"
	"aercd/pkg/ai"
	"aercd/pkg/domain"
	"aercd/pkg/registry"
)

const (
	defaultHistoryLimit   = 10
	defaultTimeout        = 30 * time.Second
	defaultMaxQuestionLen = 2000
)

// Replies substituted for the generator's answer.
const (
	OfflineReply  = "L'assistant de l'AERCD n'est pas disponible pour le moment. Consultez les pages des UFR ou contactez l'Amicale pour toute question."
	FallbackReply = "Désolé, je n'ai pas pu obtenir de réponse. Veuillez réessayer dans quelques instants."
)

const preamble = `Tu es l'assistant virtuel de l'AERCD, l'amicale des étudiants de l'université.
Ta mission est d'orienter les étudiants et futurs bacheliers sur les UFR, leurs départements et leurs formations.`

const instructions = `Consignes :
- Réponds en français, de façon concise et bienveillante.
- Appuie-toi uniquement sur les données ci-dessus pour tout ce qui concerne les UFR, départements et formations.
- Si l'information n'y figure pas, dis-le et invite l'étudiant à contacter l'Amicale.
- N'invente jamais de formation, de responsable ou de débouché.`

var (
	ErrEmptyQuestion         = errors.New("question required")
	ErrQuestionTooLong       = errors.New("question too long")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrConversationForbidden = errors.New("conversation forbidden")
)

// Config configures a Bridge. A nil Generator puts the bridge in offline mode.
// HistoryLimit 0 selects the default; a negative value sends no prior turns.
type Config struct {
	Generator      ai.TextGenerator
	Registry       *registry.Registry
	Transcripts    TranscriptStore
	HistoryLimit   int
	Timeout        time.Duration
	MaxQuestionLen int
	Now            func() time.Time
}

// Bridge sends one question per call to the generator. Sends on the same
// conversation are serialized so replies land in the transcript in order.
type Bridge struct {
	generator      ai.TextGenerator
	transcripts    TranscriptStore
	system         string
	historyLimit   int
	timeout        time.Duration
	maxQuestionLen int
	now            func() time.Time
	locks          *keyedMutex
}

// New builds a Bridge and renders the registry snapshot used in every prompt.
func New(cfg Config) (*Bridge, error) {
	reg := cfg.Registry
	if reg == nil {
		reg = registry.Default()
	}
	snapshot, err := reg.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("render registry snapshot: %w", err)
	}
	b := &Bridge{
		generator:      cfg.Generator,
		transcripts:    cfg.Transcripts,
		system:         systemPrompt(snapshot),
		historyLimit:   cfg.HistoryLimit,
		timeout:        cfg.Timeout,
		maxQuestionLen: cfg.MaxQuestionLen,
		now:            cfg.Now,
		locks:          newKeyedMutex(),
	}
	if b.transcripts == nil {
		b.transcripts = NewMemoryTranscripts(0)
	}
	if b.historyLimit < 0 {
		b.historyLimit = 0
	} else if b.historyLimit == 0 {
		b.historyLimit = defaultHistoryLimit
	}
	if b.timeout <= 0 {
		b.timeout = defaultTimeout
	}
	if b.maxQuestionLen <= 0 {
		b.maxQuestionLen = defaultMaxQuestionLen
	}
	if b.now == nil {
		b.now = func() time.Time { return time.Now().UTC() }
	}
	return b, nil
}

// Online reports whether a generator is configured.
func (b *Bridge) Online() bool {
	return b.generator != nil
}

func systemPrompt(snapshot string) string {
	var sb strings.Builder
	sb.WriteString(preamble)
	sb.WriteString("\n\nDonnées de référence des UFR (YAML) :\n")
	sb.WriteString(snapshot)
	sb.WriteString("\n")
	sb.WriteString(instructions)
	return sb.String()
}

// Ask appends question to the conversation and returns the reply. An empty
// conversationID, or one never seen, starts a new conversation owned by
// owner. Generator failures never surface as errors: the reply is then a
// canned text with Fallback set.
func (b *Bridge) Ask(ctx context.Context, owner, conversationID, question string) (domain.ChatReply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.ChatReply{}, ErrEmptyQuestion
	}
	if utf8.RuneCountInString(question) > b.maxQuestionLen {
		return domain.ChatReply{}, ErrQuestionTooLong
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		conversationID = util.NewID()
	}

	unlock := b.locks.Lock(conversationID)
	defer unlock()

	convOwner, exists, err := b.transcripts.Owner(ctx, conversationID)
	if err != nil {
		return domain.ChatReply{}, err
	}
	if exists && convOwner != "" && convOwner != owner {
		return domain.ChatReply{}, ErrConversationForbidden
	}
	if !exists {
		convOwner = owner
	}
	history, err := b.transcripts.Recent(ctx, conversationID, b.historyLimit)
	if err != nil {
		return domain.ChatReply{}, err
	}

	reply := domain.ChatReply{
		ConversationID: conversationID,
		RequestID:      util.NewID(),
	}
	logger := util.LoggerFromContext(ctx).With("conversation_id", conversationID, "chat_request_id", reply.RequestID)
	asked := b.now()
	if b.generator == nil {
		reply.Reply, reply.Fallback = OfflineReply, true
		logger.Info("chat_offline_reply")
	} else {
		genCtx, cancel := context.WithTimeout(ctx, b.timeout)
		text, err := b.generator.Generate(genCtx, ai.Request{
			System:  b.system,
			History: toTurns(history),
			Prompt:  question,
		})
		cancel()
		if err != nil {
			logger.Warn("chat_generation_failed", "err", err)
			reply.Reply, reply.Fallback = FallbackReply, true
		} else {
			reply.Reply = text
		}
	}
	reply.CreatedAt = b.now()

	err = b.transcripts.Append(context.WithoutCancel(ctx), conversationID, convOwner,
		domain.ChatMessage{Role: string(ai.RoleUser), Content: question, CreatedAt: asked},
		domain.ChatMessage{Role: string(ai.RoleAssistant), Content: reply.Reply, CreatedAt: reply.CreatedAt},
	)
	if err != nil {
		logger.Warn("chat_transcript_append_failed", "err", err)
	}
	return reply, nil
}

// Transcript returns the stored messages of a conversation, oldest first.
func (b *Bridge) Transcript(ctx context.Context, owner, conversationID string) ([]domain.ChatMessage, error) {
	convOwner, exists, err := b.transcripts.Owner(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrConversationNotFound
	}
	if convOwner != "" && convOwner != owner {
		return nil, ErrConversationForbidden
	}
	return b.transcripts.Recent(ctx, conversationID, maxStoredMessages)
}

func toTurns(history []domain.ChatMessage) []ai.Turn {
	turns := make([]ai.Turn, 0, len(history))
	for _, msg := range history {
		role := ai.RoleUser
		if msg.Role == string(ai.RoleAssistant) {
			role = ai.RoleAssistant
		}
		turns = append(turns, ai.Turn{Role: role, Text: msg.Content})
	}
	return turns
}
