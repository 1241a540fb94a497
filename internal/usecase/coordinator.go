package usecase

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"civicsos/internal/domain"
	"civicsos/internal/ports"
)

// shakeHapticMs is the vibration pulse confirming a detected shake.
const shakeHapticMs = 200

// ActivationGate lets the coordinator hand a matched trigger to the
// SOS flow without owning it.
type ActivationGate interface {
	SOSActive() bool
	ActivateFromTrigger(user domain.User) error
}

// UserSource exposes the signed-in user, if any.
type UserSource interface {
	CurrentUser() (domain.User, bool)
}

// MatcherFactory builds a phrase matcher for a given secret phrase.
type MatcherFactory func(secret string) (PhraseMatcher, error)

// CoordinatorConfig controls shake detection.
type CoordinatorConfig struct {
	Threshold float64
	Debounce  time.Duration
}

// Coordinator turns motion samples into passphrase listening
// sessions: a shake above the threshold opens a bounded listening
// window, and a matched phrase activates the SOS flow directly.
type Coordinator struct {
	feed     ports.MotionFeed
	listener *ListenController
	matchers MatcherFactory
	gate     ActivationGate
	users    UserSource
	events   ports.EventSink
	log      *zap.Logger
	cfg      CoordinatorConfig

	mu        sync.Mutex
	lastShake time.Time
}

func NewCoordinator(
	feed ports.MotionFeed,
	listener *ListenController,
	matchers MatcherFactory,
	gate ActivationGate,
	users UserSource,
	events ports.EventSink,
	log *zap.Logger,
	cfg CoordinatorConfig,
) *Coordinator {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 15
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		feed:     feed,
		listener: listener,
		matchers: matchers,
		gate:     gate,
		users:    users,
		events:   events,
		log:      log,
		cfg:      cfg,
	}
}

// Run consumes the motion feed until ctx is cancelled or the feed
// closes. Call it on its own goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	samples := c.feed.Samples()
	for {
		select {
		case <-ctx.Done():
			c.listener.Cancel()
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			c.handle(ctx, sample)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, sample ports.MotionSample) {
	if sample.Magnitude < c.cfg.Threshold {
		return
	}
	if !c.debounce(sample.At) {
		return
	}

	user, ok := c.users.CurrentUser()
	if !ok {
		return
	}
	if !user.Triggers.ShakeEnabled || !user.Triggers.PassphraseEnabled {
		return
	}
	if strings.TrimSpace(user.Triggers.SecretPhrase) == "" {
		return
	}
	if c.gate.SOSActive() || c.listener.Active() {
		return
	}

	c.events.Haptic(shakeHapticMs)
	c.log.Info("shake detected, opening listening window",
		zap.Float64("magnitude", sample.Magnitude))

	matcher, err := c.matchers(user.Triggers.SecretPhrase)
	if err != nil {
		c.log.Warn("failed to build phrase matcher", zap.Error(err))
		c.events.Toast("Voice trigger is unavailable.")
		return
	}

	session, err := c.listener.Start(ctx, matcher)
	if err != nil {
		c.log.Warn("failed to start listening session", zap.Error(err))
		c.events.Toast("Could not open the microphone for the voice trigger.")
		return
	}

	go c.awaitResult(session, user)
}

func (c *Coordinator) awaitResult(session *ListenSession, user domain.User) {
	result := <-session.Result()
	switch result.Outcome {
	case domain.ListenMatched:
		c.events.Toast("Secret phrase detected. Activating SOS.")
		if err := c.gate.ActivateFromTrigger(user); err != nil {
			c.log.Warn("trigger activation refused", zap.Error(err))
		}
	case domain.ListenTimedOut:
		c.events.Toast("No secret phrase detected.")
	case domain.ListenFailed:
		c.log.Warn("listening session failed", zap.Error(result.Err))
		c.events.Toast("Voice trigger failed. Please try again.")
	case domain.ListenCancelled:
	}
}

// debounce admits at most one shake per debounce interval.
func (c *Coordinator) debounce(at time.Time) bool {
	if at.IsZero() {
		at = time.Now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lastShake.IsZero() && at.Sub(c.lastShake) < c.cfg.Debounce {
		return false
	}
	c.lastShake = at
	return true
}
