// Package heartbeat implements the periodic, active-hours-bounded
// ticker that nudges the agent loop to review HEARTBEAT.md and
// proactively surface anything worth the user's attention.
package heartbeat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/eddmann/jeeves/internal/agentlock"
	"github.com/eddmann/jeeves/internal/config"
	"github.com/eddmann/jeeves/internal/llmclient"
	"github.com/eddmann/jeeves/internal/workspace"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 30 * time.Minute

// dedupWindow is how long an identical reply is suppressed for.
const dedupWindow = 24 * time.Hour

// okReply is the exact text the agent is asked to reply with when
// nothing needs attention.
const okReply = "HEARTBEAT_OK"

// sessionKey is the fixed Session Store key heartbeat turns run under.
const sessionKey = "heartbeat"

// prompt is the fixed instruction sent on every tick that passes the
// active-hours and HEARTBEAT.md-presence checks.
const prompt = "Read HEARTBEAT.md and follow its instructions. If nothing needs attention, reply with exactly HEARTBEAT_OK."

// AgentRunner is the narrow slice of internal/agent.Loop heartbeat
// depends on.
type AgentRunner interface {
	RunAgent(ctx context.Context, sessionKey string, userContent llmclient.Message) (string, error)
}

// OutboundChannel delivers a heartbeat's surfaced text to wherever the
// caller has wired it (chat provider, log, etc). A nil channel makes
// Runner a no-op sender — turns still happen, nothing is delivered.
type OutboundChannel interface {
	Send(ctx context.Context, text string) error
}

// Runner drives the heartbeat ticker.
type Runner struct {
	logger       *slog.Logger
	mutex        *agentlock.Mutex
	agent        AgentRunner
	channel      OutboundChannel
	workspaceDir string

	interval                     time.Duration
	activeStartMin, activeEndMin int
	loc                          *time.Location

	mu           sync.Mutex
	lastSentText string
	lastSentAt   time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New validates cfg's active-hours strings and timezone and returns a
// ready-to-Start Runner.
func New(logger *slog.Logger, mutex *agentlock.Mutex, agent AgentRunner, channel OutboundChannel, workspaceDir string, cfg config.HeartbeatConfig) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	startMin, err := config.MinuteOfDay(cfg.ActiveStart)
	if err != nil {
		return nil, err
	}
	endMin, err := config.MinuteOfDay(cfg.ActiveEnd)
	if err != nil {
		return nil, err
	}

	loc := time.Local
	if cfg.Timezone != "" {
		l, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, err
		}
		loc = l
	}

	interval := DefaultInterval
	if cfg.IntervalMinutes > 0 {
		interval = time.Duration(cfg.IntervalMinutes) * time.Minute
	}

	return &Runner{
		logger:         logger,
		mutex:          mutex,
		agent:          agent,
		channel:        channel,
		workspaceDir:   workspaceDir,
		interval:       interval,
		activeStartMin: startMin,
		activeEndMin:   endMin,
		loc:            loc,
		stopCh:         make(chan struct{}),
	}, nil
}

// Start runs the ticker in a background goroutine.
func (r *Runner) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.tick()
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Stop cancels future ticks immediately and waits for the background
// goroutine to exit. Safe to call more than once.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// tick implements the §4.5 heartbeat algorithm for one firing.
func (r *Runner) tick() {
	if !r.withinActiveHours(time.Now()) {
		return
	}

	if _, ok := workspace.ReadHeartbeatFile(r.workspaceDir); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	reply, err := agentlock.WithLock(ctx, r.mutex, func(ctx context.Context) (string, error) {
		return r.agent.RunAgent(ctx, sessionKey, llmclient.NewTextMessage(llmclient.RoleUser, prompt))
	})
	if err != nil {
		r.logger.Error("heartbeat turn failed", "error", err)
		return
	}

	trimmed := strings.TrimSpace(reply)
	if trimmed == okReply {
		return
	}

	if r.suppressAndRecord(trimmed) {
		return
	}

	if r.channel == nil {
		return
	}
	if err := r.channel.Send(ctx, trimmed); err != nil {
		r.logger.Error("heartbeat send failed", "error", err)
	}
}

// suppressAndRecord reports whether text should be suppressed as a
// duplicate of the last send within dedupWindow, recording it as the
// new last-sent text/time when it is not.
func (r *Runner) suppressAndRecord(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if text == r.lastSentText && time.Since(r.lastSentAt) < dedupWindow {
		return true
	}
	r.lastSentText = text
	r.lastSentAt = time.Now()
	return false
}

// withinActiveHours implements the two-HH:MM, midnight-wrapping window
// rule: start <= end is a same-day window [start, end]; start > end
// wraps midnight as [start, 24:00) union [0:00, end].
func (r *Runner) withinActiveHours(now time.Time) bool {
	minute := now.In(r.loc).Hour()*60 + now.In(r.loc).Minute()
	if r.activeStartMin <= r.activeEndMin {
		return minute >= r.activeStartMin && minute <= r.activeEndMin
	}
	return minute >= r.activeStartMin || minute <= r.activeEndMin
}
