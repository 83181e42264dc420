// Package remediation hands a finished quiz's missed questions to the AI
// tutor and carries the follow-up conversation.
package remediation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/p-n-ai/pai-course/internal/ai"
	"github.com/p-n-ai/pai-course/internal/mastery"
	"github.com/p-n-ai/pai-course/internal/quiz"
)

const (
	defaultCompactThreshold      = 20
	defaultCompactTokenThreshold = 20000 // ~20k tokens triggers compaction
	defaultKeepRecent            = 6
	defaultWeakestConcepts       = 3

	fallbackReply = "Sorry, I'm having trouble right now. Please try again in a moment."
	openingPrompt = "I just finished the quiz. Can you help me understand what I got wrong?"
)

var (
	ErrBudgetExceeded    = errors.New("AI token budget exceeded")
	ErrConversationEnded = errors.New("conversation has ended")
	ErrLearnerRequired   = errors.New("learner id is required")
	ErrEmptyMessage      = errors.New("message text is required")
)

// Handoff is what a finished quiz passes to the tutor.
type Handoff struct {
	ModuleID     string
	QuizID       string
	Missed       []quiz.Missed
	CorrectCount int
	TotalCount   int
	Language     string // BCP 47 tag, e.g. "en", "ms", "es-419"
}

// Turn is one tutor reply within a conversation.
type Turn struct {
	ConversationID string `json:"conversation_id"`
	Reply          string `json:"reply"`
}

// EngineConfig holds dependencies for the remediation engine.
type EngineConfig struct {
	AIRouter              *ai.Router
	Store                 ConversationStore
	Aggregator            *mastery.Aggregator
	Budget                ai.BudgetChecker
	CompactThreshold      int // messages before compaction triggers (default 20)
	CompactTokenThreshold int // estimated tokens before compaction triggers (default 20000)
	KeepRecent            int // recent messages to keep after compaction (default 6)
	WeakestConcepts       int // weakest concepts listed in the prompt (default 3)
}

// Engine runs remediation conversations.
type Engine struct {
	aiRouter              *ai.Router
	store                 ConversationStore
	aggregator            *mastery.Aggregator
	budget                ai.BudgetChecker
	compactThreshold      int
	compactTokenThreshold int
	keepRecent            int
	weakest               int
}

// NewEngine creates a remediation engine. A nil router behaves like one
// with no providers, so every turn gets the fallback reply.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		aiRouter:              cfg.AIRouter,
		store:                 cfg.Store,
		aggregator:            cfg.Aggregator,
		budget:                cfg.Budget,
		compactThreshold:      cfg.CompactThreshold,
		compactTokenThreshold: cfg.CompactTokenThreshold,
		keepRecent:            cfg.KeepRecent,
		weakest:               cfg.WeakestConcepts,
	}
	if e.aiRouter == nil {
		e.aiRouter = ai.NewRouter()
	}
	if e.store == nil {
		e.store = NewMemoryStore()
	}
	if e.budget == nil {
		e.budget = ai.NewInMemoryBudget(0)
	}
	if e.compactThreshold == 0 {
		e.compactThreshold = defaultCompactThreshold
	}
	if e.compactTokenThreshold == 0 {
		e.compactTokenThreshold = defaultCompactTokenThreshold
	}
	if e.keepRecent == 0 {
		e.keepRecent = defaultKeepRecent
	}
	if e.weakest == 0 {
		e.weakest = defaultWeakestConcepts
	}
	return e
}

// Start opens a conversation seeded with the quiz result and returns the
// tutor's opening reply.
func (e *Engine) Start(ctx context.Context, learnerID string, h Handoff) (Turn, error) {
	if learnerID == "" {
		return Turn{}, ErrLearnerRequired
	}
	if err := e.checkBudget(ctx, learnerID); err != nil {
		return Turn{}, err
	}

	system := e.buildSystemPrompt(ctx, learnerID, h)
	id, err := e.store.CreateConversation(ctx, Conversation{
		LearnerID: learnerID,
		ModuleID:  h.ModuleID,
		QuizID:    h.QuizID,
		System:    system,
	})
	if err != nil {
		return Turn{}, fmt.Errorf("create conversation: %w", err)
	}

	slog.Info("remediation started",
		"conversation_id", id,
		"learner_id", learnerID,
		"module_id", h.ModuleID,
		"quiz_id", h.QuizID,
		"missed", len(h.Missed),
	)

	conv, err := e.store.GetConversation(ctx, id)
	if err != nil {
		return Turn{}, fmt.Errorf("load conversation: %w", err)
	}
	return Turn{ConversationID: id, Reply: e.respond(ctx, conv, openingPrompt)}, nil
}

// Reply continues a conversation owned by learnerID.
func (e *Engine) Reply(ctx context.Context, learnerID, conversationID, text string) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyMessage
	}

	conv, err := e.conversationFor(ctx, learnerID, conversationID)
	if err != nil {
		return Turn{}, err
	}
	if conv.EndedAt != nil {
		return Turn{}, ErrConversationEnded
	}
	if err := e.checkBudget(ctx, learnerID); err != nil {
		return Turn{}, err
	}
	return Turn{ConversationID: conv.ID, Reply: e.respond(ctx, conv, text)}, nil
}

// Conversation returns a conversation owned by learnerID.
func (e *Engine) Conversation(ctx context.Context, learnerID, conversationID string) (*Conversation, error) {
	return e.conversationFor(ctx, learnerID, conversationID)
}

// End closes a conversation owned by learnerID.
func (e *Engine) End(ctx context.Context, learnerID, conversationID string) error {
	conv, err := e.conversationFor(ctx, learnerID, conversationID)
	if err != nil {
		return err
	}
	if conv.EndedAt != nil {
		return nil
	}
	return e.store.EndConversation(ctx, conv.ID)
}

func (e *Engine) conversationFor(ctx context.Context, learnerID, conversationID string) (*Conversation, error) {
	conv, err := e.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	// Another learner's conversation looks the same as a missing one.
	if conv.LearnerID != learnerID {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	return conv, nil
}

func (e *Engine) checkBudget(ctx context.Context, learnerID string) error {
	ok, err := e.budget.Check(ctx, learnerID)
	if err != nil {
		slog.Warn("budget check failed, allowing request", "learner_id", learnerID, "error", err)
		return nil
	}
	if !ok {
		return ErrBudgetExceeded
	}
	return nil
}

// respond records the learner's text, asks the AI, records the reply and
// returns it. AI failures produce the fallback reply.
func (e *Engine) respond(ctx context.Context, conv *Conversation, text string) string {
	if err := e.store.AddMessage(ctx, conv.ID, StoredMessage{Role: "user", Content: text}); err != nil {
		slog.Error("failed to store user message", "conversation_id", conv.ID, "error", err)
	}
	if fresh, err := e.store.GetConversation(ctx, conv.ID); err == nil {
		conv = fresh
	} else {
		conv.Messages = append(conv.Messages, StoredMessage{Role: "user", Content: text})
	}

	e.maybeCompact(ctx, conv)

	messages := []ai.Message{{Role: "system", Content: conv.System}}
	messages = append(messages, buildContextMessages(conv)...)

	resp, err := e.aiRouter.Complete(ctx, ai.CompletionRequest{
		Messages:  messages,
		Task:      ai.TaskRemediation,
		MaxTokens: 1024,
	})
	if err != nil {
		slog.Error("AI completion failed", "conversation_id", conv.ID, "error", err)
		return fallbackReply
	}

	if err := e.store.AddMessage(ctx, conv.ID, StoredMessage{
		Role:         "assistant",
		Content:      resp.Content,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}); err != nil {
		slog.Error("failed to store assistant message", "conversation_id", conv.ID, "error", err)
	}
	if err := e.budget.Record(ctx, conv.LearnerID, resp.TotalTokens()); err != nil {
		slog.Warn("failed to record token usage", "learner_id", conv.LearnerID, "error", err)
	}
	return resp.Content
}

// buildContextMessages returns the conversation messages for the AI prompt.
// If a summary exists, it prepends it and only includes messages after the
// compaction point.
func buildContextMessages(conv *Conversation) []ai.Message {
	var messages []ai.Message
	rest := conv.Messages
	if conv.Summary != "" {
		messages = append(messages,
			ai.Message{Role: "user", Content: "Previous conversation summary:\n" + conv.Summary},
			ai.Message{Role: "assistant", Content: "Understood, I'll continue based on our previous conversation."},
		)
		if conv.CompactedAt <= len(rest) {
			rest = rest[conv.CompactedAt:]
		}
	}
	for _, m := range rest {
		messages = append(messages, ai.Message{Role: m.Role, Content: m.Content})
	}
	return messages
}

// estimateTokens gives a rough token count for messages (1 token ≈ 4 chars).
func estimateTokens(messages []StoredMessage) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
	}
	return total
}

// maybeCompact summarizes older turns once the messages since the last
// compaction exceed either threshold.
func (e *Engine) maybeCompact(ctx context.Context, conv *Conversation) {
	if conv.CompactedAt > len(conv.Messages) {
		return
	}
	uncompacted := conv.Messages[conv.CompactedAt:]
	if len(uncompacted) <= e.compactThreshold && estimateTokens(uncompacted) <= e.compactTokenThreshold {
		return
	}

	compactUpTo := len(conv.Messages) - e.keepRecent
	if compactUpTo <= conv.CompactedAt {
		return
	}

	var content strings.Builder
	if conv.Summary != "" {
		content.WriteString("Previous summary:\n")
		content.WriteString(conv.Summary)
		content.WriteString("\n\nNew messages to incorporate:\n")
	}
	for _, m := range conv.Messages[conv.CompactedAt:compactUpTo] {
		role := "Learner"
		if m.Role == "assistant" {
			role = "Tutor"
		}
		fmt.Fprintf(&content, "%s: %s\n", role, m.Content)
	}

	resp, err := e.aiRouter.Complete(ctx, ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: `Summarize this tutoring conversation concisely. Capture:
- Which missed questions were reviewed
- What the learner understood or still struggles with
- Any examples worked through
Keep the summary under 150 words. Write in the same language used in the conversation.`},
			{Role: "user", Content: content.String()},
		},
		Task:      ai.TaskSummary,
		MaxTokens: 256,
	})
	if err != nil {
		slog.Warn("compaction failed, continuing without summary", "conversation_id", conv.ID, "error", err)
		return
	}

	if err := e.store.SetSummary(ctx, conv.ID, resp.Content, compactUpTo); err != nil {
		slog.Warn("failed to save summary", "conversation_id", conv.ID, "error", err)
		return
	}
	conv.Summary = resp.Content
	conv.CompactedAt = compactUpTo

	slog.Info("conversation compacted",
		"conversation_id", conv.ID,
		"compacted_messages", compactUpTo,
		"remaining_messages", len(conv.Messages)-compactUpTo,
	)
}

func (e *Engine) buildSystemPrompt(ctx context.Context, learnerID string, h Handoff) string {
	var b strings.Builder
	b.WriteString(`You are a friendly personal-finance tutor helping a learner review a quiz they just took.

TEACHING STYLE:
- Go through the missed questions one at a time
- Explain why the correct answer is right using everyday money examples
- Ask a short check-for-understanding question before moving on
- Keep responses concise, this is a chat, not a textbook
- Never make the learner feel bad about a wrong answer
`)

	fmt.Fprintf(&b, "\nLANGUAGE: Respond in %s.\n", languageName(h.Language))
	fmt.Fprintf(&b, "\nQUIZ RESULT: %d of %d correct.\n", h.CorrectCount, h.TotalCount)

	if len(h.Missed) == 0 {
		b.WriteString("\nThe learner missed no questions. Congratulate them and offer to go deeper on any topic.\n")
	} else {
		b.WriteString("\nMISSED QUESTIONS:\n")
		for i, m := range h.Missed {
			fmt.Fprintf(&b, "%d. %s\n", i+1, m.Prompt)
			fmt.Fprintf(&b, "   Learner answered: %s\n", formatAnswer(m.Answer))
			if m.Explanation != "" {
				fmt.Fprintf(&b, "   Explanation: %s\n", m.Explanation)
			}
			if len(m.Concepts) > 0 {
				fmt.Fprintf(&b, "   Concepts: %s\n", strings.Join(m.Concepts, ", "))
			}
		}
	}

	if weak := e.weakestConcepts(ctx, learnerID); len(weak) > 0 {
		b.WriteString("\nWEAKEST CONCEPTS SO FAR:\n")
		for _, c := range weak {
			fmt.Fprintf(&b, "- %s (%d of %d correct)\n", c.Concept, c.Correct, c.Attempts)
		}
	}
	return b.String()
}

func (e *Engine) weakestConcepts(ctx context.Context, learnerID string) []mastery.ConceptScore {
	if e.aggregator == nil {
		return nil
	}
	weak, err := e.aggregator.Weakest(ctx, learnerID, e.weakest)
	if err != nil {
		slog.Warn("failed to load weakest concepts", "learner_id", learnerID, "error", err)
		return nil
	}
	return weak
}

func formatAnswer(a quiz.Answer) string {
	switch {
	case len(a.Values) > 0:
		return strings.Join(a.Values, ", ")
	case a.Value != "":
		return a.Value
	default:
		return "(no answer)"
	}
}

// languageName renders a BCP 47 tag as "English name (native name)".
// Unparseable or empty tags fall back to English.
func languageName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil || tag == "" {
		t = language.English
	}
	english := display.English.Tags().Name(t)
	native := display.Self.Name(t)
	if native == "" || native == english {
		return english
	}
	return fmt.Sprintf("%s (%s)", english, native)
}
