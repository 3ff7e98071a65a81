// Package agent implements the Agent Loop: the synchronous,
// per-turn conversation driver that reads and writes the Session
// Store, calls the LLM, dispatches tool calls, and triggers
// compaction when the token budget demands it.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eddmann/jeeves/internal/compaction"
	"github.com/eddmann/jeeves/internal/llmclient"
	"github.com/eddmann/jeeves/internal/session"
)

// MaxIterations bounds the number of LLM round-trips a single
// RunAgent call will make before giving up.
const MaxIterations = 25

// MaxIterationsReachedMessage is returned (not an error) when the
// loop exhausts MaxIterations without a final response.
const MaxIterationsReachedMessage = "(Agent reached maximum iterations)"

// ProgressKind distinguishes the two progress events the loop emits.
type ProgressKind string

const (
	ProgressThinking    ProgressKind = "thinking"
	ProgressToolRunning ProgressKind = "tool_running"
)

// ProgressEvent is delivered to an optional progress callback so a
// caller (chat transport, CLI) can show liveness during a turn.
type ProgressEvent struct {
	Kind     ProgressKind
	ToolName string
}

// ProgressFunc receives progress events. A nil ProgressFunc is a
// valid no-op.
type ProgressFunc func(ProgressEvent)

// Resyncer is asked to re-sync the Memory Index after compaction. The
// loop treats it as opaque and tolerates it being nil.
type Resyncer interface {
	RequestResync()
}

// Loop is the Agent Loop. Construct via NewLoop, configure with the
// Set* methods, then call RunAgent once per turn. A Loop holds no
// per-call state and is safe to reuse across goroutines; callers are
// responsible for serialising turns against the same session key
// (the agent mutex, internal/agentlock, exists for exactly this).
type Loop struct {
	llm       llmclient.Client
	sessions  *session.Store
	compactor *compaction.Engine
	tools     *Registry
	logger    *slog.Logger

	model        string
	workspaceDir string

	progress        ProgressFunc
	resync          Resyncer
	skillsCatalogue string
	oauthPreamble   string
	maxIterations   int
}

// NewLoop returns a Loop with its required collaborators wired in.
func NewLoop(logger *slog.Logger, sessions *session.Store, compactor *compaction.Engine, llm llmclient.Client, tools *Registry, model, workspaceDir string) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		llm:           llm,
		sessions:      sessions,
		compactor:     compactor,
		tools:         tools,
		logger:        logger,
		model:         model,
		workspaceDir:  workspaceDir,
		maxIterations: MaxIterations,
	}
}

// SetProgressFunc installs a callback receiving thinking/tool-running
// events during RunAgent.
func (l *Loop) SetProgressFunc(fn ProgressFunc) { l.progress = fn }

// SetResyncer installs the Memory Index re-sync hook fired after
// compaction.
func (l *Loop) SetResyncer(r Resyncer) { l.resync = r }

// SetSkillsCatalogue sets the text describing available skills,
// appended to the system prompt.
func (l *Loop) SetSkillsCatalogue(s string) { l.skillsCatalogue = s }

// SetOAuthPreamble sets a provider-identity preamble prepended to the
// system prompt when operating in OAuth mode. Empty disables it.
func (l *Loop) SetOAuthPreamble(s string) { l.oauthPreamble = s }

// SetMaxIterations overrides MaxIterations, for tests.
func (l *Loop) SetMaxIterations(n int) {
	if n > 0 {
		l.maxIterations = n
	}
}

func (l *Loop) emit(kind ProgressKind, toolName string) {
	if l.progress != nil {
		l.progress(ProgressEvent{Kind: kind, ToolName: toolName})
	}
}

// RunAgent runs one conversational turn for sessionKey given
// userContent (built via llmclient.NewTextMessage or
// NewBlockMessage), appending to and reading from the Session Store,
// and returns the assistant's reply text.
func (l *Loop) RunAgent(ctx context.Context, sessionKey string, userContent llmclient.Message) (string, error) {
	userContent.Role = llmclient.RoleUser

	working, err := l.sessions.Get(sessionKey)
	if err != nil {
		return "", fmt.Errorf("agent: load session: %w", err)
	}

	if err := l.sessions.Append(sessionKey, []llmclient.Message{sanitizeForPersistence(userContent)}); err != nil {
		return "", fmt.Errorf("agent: persist user message: %w", err)
	}
	working = append(working, userContent)

	systemPrompt := l.buildSystemPrompt()
	toolDefs := l.tools.Definitions()

	var pending []llmclient.Message // buffered, not-yet-appended new messages
	flushFired := false
	totalTokens := 0 // most recent call's inputTokens+outputTokens, not a running sum

	persistPending := func() error {
		if len(pending) == 0 {
			return nil
		}
		sanitized := make([]llmclient.Message, len(pending))
		for i, m := range pending {
			sanitized[i] = sanitizeForPersistence(m)
		}
		if err := l.sessions.Append(sessionKey, sanitized); err != nil {
			return fmt.Errorf("agent: persist buffered messages: %w", err)
		}
		pending = nil
		return nil
	}

	for i := 0; i < l.maxIterations; i++ {
		l.emit(ProgressThinking, "")

		resp, err := l.llm.Chat(ctx, llmclient.Request{
			Messages:     working,
			Tools:        toolDefs,
			SystemPrompt: systemPrompt,
			Model:        l.model,
		})
		if err != nil {
			return "", fmt.Errorf("agent: llm call failed: %w", err)
		}
		totalTokens = resp.Usage.InputTokens + resp.Usage.OutputTokens

		assistantMsg := buildAssistantMessage(resp)
		working = append(working, assistantMsg)
		pending = append(pending, assistantMsg)

		if len(resp.ToolCalls) == 0 || resp.StopReason == llmclient.StopEndTurn {
			if compaction.ShouldFlush(totalTokens) && !flushFired {
				flushFired = true
				working = append(working, flushPrompt())
				continue
			}
			if err := persistPending(); err != nil {
				return "", err
			}
			return resp.Text, nil
		}

		resultBlocks := make([]llmclient.Block, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			l.emit(ProgressToolRunning, tc.Name)

			var result string
			tool, ok := l.tools.Get(tc.Name)
			if !ok {
				result = fmt.Sprintf("Unknown tool: %s", tc.Name)
			} else {
				out, err := tool.Execute(ctx, tc.Input)
				if err != nil {
					result = fmt.Sprintf("Tool error: %s", err.Error())
				} else {
					result = out
				}
			}
			resultBlocks = append(resultBlocks, llmclient.ToolResultBlock(tc.ID, result))
		}
		toolResultMsg := llmclient.NewBlockMessage(llmclient.RoleUser, resultBlocks)
		working = append(working, toolResultMsg)
		pending = append(pending, toolResultMsg)

		if compaction.ShouldCompact(totalTokens) {
			if err := persistPending(); err != nil {
				return "", err
			}
			compacted := l.compactor.Compact(ctx, working)
			working = compacted
			if err := l.sessions.Compact(sessionKey, compacted); err != nil {
				return "", fmt.Errorf("agent: write compaction: %w", err)
			}
			if l.resync != nil {
				l.resync.RequestResync()
			}
			flushFired = false
			totalTokens = compaction.EstimateTotal(working)
		}
	}

	if err := persistPending(); err != nil {
		return "", err
	}
	return MaxIterationsReachedMessage, nil
}

// buildAssistantMessage constructs the assistant's message for this
// iteration from the LLM response: a bare string when it is exactly
// one text block and no tool calls, otherwise an ordered block list.
func buildAssistantMessage(resp llmclient.Response) llmclient.Message {
	if len(resp.ToolCalls) == 0 {
		return llmclient.NewTextMessage(llmclient.RoleAssistant, resp.Text)
	}
	var blocks []llmclient.Block
	if resp.Text != "" {
		blocks = append(blocks, llmclient.TextBlock(resp.Text))
	}
	for _, tc := range resp.ToolCalls {
		blocks = append(blocks, llmclient.ToolUseBlock(tc.ID, tc.Name, tc.Input))
	}
	return llmclient.NewBlockMessage(llmclient.RoleAssistant, blocks)
}

// flushPrompt is the fixed user-role nudge asking the model to
// persist important context to a dated memory file before the
// token budget forces compaction.
func flushPrompt() llmclient.Message {
	return llmclient.NewTextMessage(llmclient.RoleUser,
		"This conversation is approaching its context limit. Before continuing, "+
			"write any important facts, decisions, or ongoing tasks worth remembering "+
			"to a dated file under the workspace's memory directory, then continue.")
}
