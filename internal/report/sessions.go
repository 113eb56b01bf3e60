package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/safetransit/safetransit/internal/stops"
)

// Sink receives finalized reports. Implementations must be safe for
// concurrent append; no stronger consistency is required.
type Sink interface {
	Append(ctx context.Context, r *Report) error
}

// Analyzer produces optional free-text commentary on a finalized report.
// Implementations are best-effort: an error or empty result degrades the
// confirmation to "no analysis" and must never block completion.
type Analyzer interface {
	AnalyzeReport(ctx context.Context, r *Report) (string, error)
}

const (
	// DefaultIdleTTL is how long an idle intake session survives before the
	// sweep discards it.
	DefaultIdleTTL = 30 * time.Minute

	// DefaultAnalysisTimeout bounds the best-effort analysis call so a slow
	// collaborator cannot stall the confirmation.
	DefaultAnalysisTimeout = 15 * time.Second

	// sweepInterval is how often expired sessions are swept, measured in
	// wall time between Input calls.
	sweepInterval = 5 * time.Minute
)

// SessionsConfig configures a Sessions manager.
type SessionsConfig struct {
	Registry *stops.Registry // Required: stop set for location validation
	Sink     Sink            // Required: append-only report store
	Analyzer Analyzer        // Optional: nil disables analysis
	Logger   *slog.Logger    // Optional: nil uses slog.Default()

	IdleTTL         time.Duration // Optional: 0 uses DefaultIdleTTL
	AnalysisTimeout time.Duration // Optional: 0 uses DefaultAnalysisTimeout
}

// Sessions manages one intake machine per actor.
//
// Actors are identified by an opaque key supplied by the transport (chat ID,
// browser session). Sessions are created on first use, discarded on
// completion-independent idle expiry or explicit cancel, and never shared
// between actors. Safe for concurrent use.
type Sessions struct {
	registry        *stops.Registry
	sink            Sink
	analyzer        Analyzer
	logger          *slog.Logger
	idleTTL         time.Duration
	analysisTimeout time.Duration
	now             func() time.Time

	mu        sync.Mutex
	active    map[string]*session
	lastSweep time.Time
}

// session pairs an intake machine with its idle tracking.
type session struct {
	intake   *Intake
	lastSeen time.Time
}

// Reply is what the transport relays back to the actor after one input.
type Reply struct {
	// Text is the next prompt, a re-prompt, or the confirmation summary.
	Text string

	// Options are the accepted replies for the next input; nil means free text.
	Options []string

	// Rejected reports that the input failed validation.
	Rejected bool

	// Done reports that a report was finalized by this input.
	Done bool

	// Report is the finalized record when Done is set.
	Report *Report

	// Analysis is the optional analysis text included in the confirmation.
	Analysis string
}

// NewSessions creates a session manager.
func NewSessions(cfg SessionsConfig) (*Sessions, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("sessions: registry is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("sessions: sink is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	analysisTimeout := cfg.AnalysisTimeout
	if analysisTimeout <= 0 {
		analysisTimeout = DefaultAnalysisTimeout
	}

	return &Sessions{
		registry:        cfg.Registry,
		sink:            cfg.Sink,
		analyzer:        cfg.Analyzer,
		logger:          logger,
		idleTTL:         idleTTL,
		analysisTimeout: analysisTimeout,
		now:             time.Now,
		active:          make(map[string]*session),
		lastSweep:       time.Now(),
	}, nil
}

// Begin starts (or restarts) an intake for the actor and returns the first
// prompt. An in-progress record for the same actor is discarded.
func (s *Sessions) Begin(actor string) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessionLocked(actor)
	sess.intake.Cancel()
	prompt := sess.intake.Prompt()
	return Reply{Text: prompt.Text, Options: prompt.Options}
}

// Input feeds one input to the actor's intake machine.
//
// On finalization the report is appended to the sink, the analyzer is
// consulted best-effort, and the confirmation summary is returned. The only
// error condition is a sink append failure; validation misses come back as a
// Rejected reply.
func (s *Sessions) Input(ctx context.Context, actor, input string) (Reply, error) {
	s.mu.Lock()
	sess := s.sessionLocked(actor)
	adv := sess.intake.Advance(input)
	s.mu.Unlock()

	if adv.Report == nil {
		return Reply{
			Text:     adv.Prompt.Text,
			Options:  adv.Prompt.Options,
			Rejected: adv.Rejected,
		}, nil
	}

	return s.complete(ctx, actor, adv.Report)
}

// Cancel discards the actor's in-progress record, if any.
// Reports whether a session existed. Nothing is emitted.
func (s *Sessions) Cancel(actor string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.active[actor]
	delete(s.active, actor)
	return ok
}

// Active reports whether the actor has an intake session past the first step.
func (s *Sessions) Active(actor string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.active[actor]
	return ok && sess.intake.Step() != StepLocation
}

// Submission is a single-shot report, used by the web form path which
// collects every field before submitting.
type Submission struct {
	Location       string
	CrowdLevel     string
	Concern        string
	AdditionalInfo string
}

// Submit drives a fresh intake machine through all four inputs at once.
// Validation failures surface as an error naming the accepted values; the
// transport maps them to a 400-level response. Actor identity is only used
// for logging; the transient machine never enters the session map.
func (s *Sessions) Submit(ctx context.Context, actor string, sub Submission) (Reply, error) {
	if !s.registry.Contains(sub.Location) {
		return Reply{}, fmt.Errorf("%w: %q", ErrUnknownLocation, sub.Location)
	}
	if _, err := ParseCrowdLevel(sub.CrowdLevel); err != nil {
		return Reply{}, err
	}
	if _, err := ParseConcern(sub.Concern); err != nil {
		return Reply{}, err
	}

	m := NewIntake(s.registry)
	var last Advance
	for _, input := range []string{sub.Location, sub.CrowdLevel, sub.Concern, sub.AdditionalInfo} {
		last = m.Advance(input)
		if last.Rejected {
			// Unreachable: every field was validated above.
			return Reply{}, fmt.Errorf("submission rejected at step %s", m.Step())
		}
	}

	return s.complete(ctx, actor, last.Report)
}

// complete appends the finalized report, gathers best-effort analysis, and
// builds the confirmation summary.
func (s *Sessions) complete(ctx context.Context, actor string, r *Report) (Reply, error) {
	if err := s.sink.Append(ctx, r); err != nil {
		return Reply{}, fmt.Errorf("storing report: %w", err)
	}

	analysis := s.analyze(ctx, r)

	s.logger.Info("report submitted",
		"actor", actor,
		"location", r.Location,
		"crowd_level", r.CrowdLevel,
		"safety_score", r.SafetyScore)

	return Reply{
		Text:     confirmation(r, analysis),
		Done:     true,
		Report:   r,
		Analysis: analysis,
	}, nil
}

// analyze consults the analyzer with a deadline. Absence or failure of the
// collaborator degrades to empty text; it never fails the submission.
func (s *Sessions) analyze(ctx context.Context, r *Report) string {
	if s.analyzer == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, s.analysisTimeout)
	defer cancel()

	text, err := s.analyzer.AnalyzeReport(ctx, r)
	if err != nil {
		s.logger.Warn("report analysis unavailable", "error", err)
		return ""
	}
	return text
}

// sessionLocked returns the actor's session, creating it on first use.
// Caller must hold s.mu. Sweeps expired sessions opportunistically.
func (s *Sessions) sessionLocked(actor string) *session {
	now := s.now()

	if now.Sub(s.lastSweep) > sweepInterval {
		for key, sess := range s.active {
			if now.Sub(sess.lastSeen) > s.idleTTL {
				delete(s.active, key)
			}
		}
		s.lastSweep = now
	}

	sess, ok := s.active[actor]
	if !ok {
		sess = &session{intake: NewIntake(s.registry)}
		s.active[actor] = sess
	}
	sess.lastSeen = now
	return sess
}

// confirmation renders the human-readable submission summary.
func confirmation(r *Report, analysis string) string {
	msg := fmt.Sprintf(
		"✅ Report submitted successfully!\n\n"+
			"📍 Location: %s\n"+
			"👥 Crowd Level: %s\n"+
			"⚠️ Safety Concerns: %s\n"+
			"⭐ Safety Score: %.1f/5.0\n",
		r.Location, r.CrowdLevel, r.ConcernsLine(), r.SafetyScore)

	if analysis != "" {
		msg += "\n🤖 AI Analysis: " + analysis
	}
	return msg
}
