package usecase

import (
	"context"
	"testing"
	"time"

	"civicsos/internal/domain"
	"civicsos/internal/ports"
)

type fakeFeed struct {
	samples chan ports.MotionSample
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{samples: make(chan ports.MotionSample, 16)}
}

func (f *fakeFeed) Samples() <-chan ports.MotionSample {
	return f.samples
}

func (f *fakeFeed) shake(magnitude float64, at time.Time) {
	f.samples <- ports.MotionSample{Magnitude: magnitude, At: at}
}

type coordinatorFixture struct {
	feed     *fakeFeed
	gate     *fakeGate
	users    *fakeUsers
	sink     *fakeEventSink
	provider *fakeProvider
	audio    *fakeAudioSession
	stream   *fakeStream
	coord    *Coordinator
	cancel   context.CancelFunc
}

func newCoordinatorFixture(t *testing.T, user domain.User, ok bool) *coordinatorFixture {
	t.Helper()

	feed := newFakeFeed()
	gate := &fakeGate{}
	users := &fakeUsers{user: user, ok: ok}
	sink := &fakeEventSink{}
	audioSession := newFakeAudioSession()
	stream := newFakeStream()
	provider := &fakeProvider{stream: stream}

	listener := NewListenController(
		&fakeAudioCapture{session: audioSession},
		provider,
		sink,
		nil,
		ListenConfig{ChunkSize: 256, Window: 5 * time.Second},
	)
	matchers := func(secret string) (PhraseMatcher, error) {
		return &fakeMatcher{target: secret}, nil
	}
	coord := NewCoordinator(feed, listener, matchers, gate, users, sink, nil, CoordinatorConfig{
		Threshold: 15,
		Debounce:  time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	t.Cleanup(cancel)

	return &coordinatorFixture{
		feed:     feed,
		gate:     gate,
		users:    users,
		sink:     sink,
		provider: provider,
		audio:    audioSession,
		stream:   stream,
		coord:    coord,
		cancel:   cancel,
	}
}

func triggerUser() domain.User {
	u := testUser()
	u.Triggers = domain.TriggerConfig{
		ShakeEnabled:      true,
		PassphraseEnabled: true,
		SecretPhrase:      "help me now",
	}
	return u
}

func TestCoordinatorIgnoresWeakMotion(t *testing.T) {
	t.Parallel()

	fx := newCoordinatorFixture(t, triggerUser(), true)
	fx.feed.shake(5, time.Now())

	time.Sleep(50 * time.Millisecond)
	if fx.provider.startedCount() != 0 {
		t.Fatalf("expected no listening session for weak motion")
	}
	if len(fx.sink.hapticLog()) != 0 {
		t.Fatalf("expected no haptic for weak motion")
	}
}

func TestCoordinatorDebouncesRepeatedShakes(t *testing.T) {
	t.Parallel()

	fx := newCoordinatorFixture(t, triggerUser(), true)
	base := time.Now()
	fx.feed.shake(20, base)
	fx.feed.shake(25, base.Add(200*time.Millisecond))

	if !waitUntil(time.Second, func() bool {
		return fx.provider.startedCount() == 1
	}) {
		t.Fatalf("expected one listening session, got %d", fx.provider.startedCount())
	}
	time.Sleep(50 * time.Millisecond)
	if fx.provider.startedCount() != 1 {
		t.Fatalf("debounce failed: %d sessions", fx.provider.startedCount())
	}
}

func TestCoordinatorRespectsDisabledTriggers(t *testing.T) {
	t.Parallel()

	user := triggerUser()
	user.Triggers.ShakeEnabled = false
	fx := newCoordinatorFixture(t, user, true)
	fx.feed.shake(30, time.Now())

	time.Sleep(50 * time.Millisecond)
	if fx.provider.startedCount() != 0 {
		t.Fatalf("expected no session with shake disabled")
	}
}

func TestCoordinatorRequiresSecretPhrase(t *testing.T) {
	t.Parallel()

	user := triggerUser()
	user.Triggers.SecretPhrase = "   "
	fx := newCoordinatorFixture(t, user, true)
	fx.feed.shake(30, time.Now())

	time.Sleep(50 * time.Millisecond)
	if fx.provider.startedCount() != 0 {
		t.Fatalf("expected no session without a secret phrase")
	}
}

func TestCoordinatorSkipsWhileSOSActive(t *testing.T) {
	t.Parallel()

	fx := newCoordinatorFixture(t, triggerUser(), true)
	fx.gate.mu.Lock()
	fx.gate.active = true
	fx.gate.mu.Unlock()

	fx.feed.shake(30, time.Now())
	time.Sleep(50 * time.Millisecond)
	if fx.provider.startedCount() != 0 {
		t.Fatalf("expected no session while an sos flow is active")
	}
}

func TestCoordinatorMatchActivatesFlow(t *testing.T) {
	t.Parallel()

	fx := newCoordinatorFixture(t, triggerUser(), true)
	fx.feed.shake(30, time.Now())

	if !waitUntil(time.Second, func() bool {
		return fx.provider.startedCount() == 1
	}) {
		t.Fatalf("listening session never started")
	}
	if got := fx.sink.hapticLog(); len(got) != 1 || got[0] != shakeHapticMs {
		t.Fatalf("expected shake haptic, got %v", got)
	}

	fx.stream.emit("okay HELP ME NOW please", domain.TranscriptKindFinal)

	if !waitUntil(2*time.Second, func() bool {
		return len(fx.gate.activations()) == 1
	}) {
		t.Fatalf("matched phrase did not activate the flow")
	}
	if fx.gate.activations()[0].Email != triggerUser().Email {
		t.Fatalf("activated with the wrong user: %+v", fx.gate.activations())
	}
}

func TestCoordinatorTimeoutRaisesToastOnly(t *testing.T) {
	t.Parallel()

	feed := newFakeFeed()
	gate := &fakeGate{}
	sink := &fakeEventSink{}
	stream := newFakeStream()
	provider := &fakeProvider{stream: stream}
	listener := NewListenController(
		&fakeAudioCapture{session: newFakeAudioSession()},
		provider,
		sink,
		nil,
		ListenConfig{ChunkSize: 256, Window: 40 * time.Millisecond},
	)
	coord := NewCoordinator(feed, listener, func(secret string) (PhraseMatcher, error) {
		return &fakeMatcher{target: secret}, nil
	}, gate, &fakeUsers{user: triggerUser(), ok: true}, sink, nil, CoordinatorConfig{Threshold: 15, Debounce: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)

	feed.shake(30, time.Now())

	if !waitUntil(2*time.Second, func() bool {
		for _, toast := range sink.toastLog() {
			if toast == "No secret phrase detected." {
				return true
			}
		}
		return false
	}) {
		t.Fatalf("expected timeout toast, got %v", sink.toastLog())
	}
	if len(gate.activations()) != 0 {
		t.Fatalf("timeout must not activate the flow")
	}
}

func TestCoordinatorIgnoresSignedOutUser(t *testing.T) {
	t.Parallel()

	fx := newCoordinatorFixture(t, domain.User{}, false)
	fx.feed.shake(30, time.Now())

	time.Sleep(50 * time.Millisecond)
	if fx.provider.startedCount() != 0 {
		t.Fatalf("expected no session without a signed-in user")
	}
}
