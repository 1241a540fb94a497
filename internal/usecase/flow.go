package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"civicsos/internal/domain"
	"civicsos/internal/ports"
)

var (
	// ErrFlowActive is returned when a new activation is requested
	// while one is already underway.
	ErrFlowActive = errors.New("an sos flow is already active")
	// ErrNoActiveRecording is returned by MarkSafe outside the
	// recording window.
	ErrNoActiveRecording = errors.New("no active sos recording")
)

// AlertWriter commits distress alerts to the shared store.
type AlertWriter interface {
	CreateSOS(user domain.User, mediaRef string) domain.SOSAlert
}

// FlowConfig controls SOS activation timing and capture.
type FlowConfig struct {
	HoldDuration    time.Duration
	CountdownTicks  int
	TickInterval    time.Duration
	RecordingWindow time.Duration
	Recorder        ports.RecorderConfig
}

// Flow drives the SOS activation lifecycle: idle, holding, countdown,
// activated, recording, processing, finished. All three entry points
// (press-and-hold, the home-screen countdown affordance, and direct
// trigger activation) converge on the same recording and commit path.
type Flow struct {
	recorder ports.MediaRecorder
	alerts   AlertWriter
	events   ports.EventSink
	log      *zap.Logger
	cfg      FlowConfig

	mu        sync.Mutex
	state     domain.FlowState
	user      domain.User
	alertID   string
	mediaRef  string
	gen       int
	cancel    chan struct{}
	holdTimer *time.Timer
	stopReq   chan domain.FlowReason
}

func NewFlow(
	recorder ports.MediaRecorder,
	alerts AlertWriter,
	events ports.EventSink,
	log *zap.Logger,
	cfg FlowConfig,
) *Flow {
	if cfg.HoldDuration <= 0 {
		cfg.HoldDuration = time.Second
	}
	if cfg.CountdownTicks <= 0 {
		cfg.CountdownTicks = 3
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.RecordingWindow <= 0 {
		cfg.RecordingWindow = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Flow{
		recorder: recorder,
		alerts:   alerts,
		events:   events,
		log:      log,
		cfg:      cfg,
		state:    domain.FlowStateIdle,
	}
}

// PressHold arms the SOS button. The countdown starts only after the
// hold has been sustained for the configured duration.
func (f *Flow) PressHold(user domain.User) error {
	f.mu.Lock()
	if f.state != domain.FlowStateIdle {
		f.mu.Unlock()
		return ErrFlowActive
	}
	gen := f.begin(user)
	f.state = domain.FlowStateHolding
	f.holdTimer = time.AfterFunc(f.cfg.HoldDuration, func() { f.holdElapsed(gen) })
	f.mu.Unlock()

	f.events.FlowStateChanged(domain.FlowStateHolding, domain.FlowReasonHoldStarted)
	return nil
}

// Release ends a press. Releasing during holding aborts with no side
// effects; once the countdown has begun, releasing changes nothing.
func (f *Flow) Release() {
	f.mu.Lock()
	if f.state != domain.FlowStateHolding {
		f.mu.Unlock()
		return
	}
	f.resetLocked()
	f.mu.Unlock()

	f.events.FlowStateChanged(domain.FlowStateIdle, domain.FlowReasonHoldReleased)
}

// BeginCountdown enters the countdown directly, bypassing the hold.
func (f *Flow) BeginCountdown(user domain.User) error {
	f.mu.Lock()
	if f.state != domain.FlowStateIdle {
		f.mu.Unlock()
		return ErrFlowActive
	}
	gen := f.begin(user)
	f.state = domain.FlowStateCountdown
	f.mu.Unlock()

	f.events.FlowStateChanged(domain.FlowStateCountdown, domain.FlowReasonCountdownStarted)
	go f.runCountdown(gen)
	return nil
}

// ActivateDirect skips hold and countdown entirely. Used by the
// trigger coordinator once the secret phrase has matched.
func (f *Flow) ActivateDirect(user domain.User) error {
	f.mu.Lock()
	if f.state != domain.FlowStateIdle {
		f.mu.Unlock()
		return ErrFlowActive
	}
	gen := f.begin(user)
	f.state = domain.FlowStateActivated
	f.mu.Unlock()

	f.events.FlowStateChanged(domain.FlowStateActivated, domain.FlowReasonActivatedTrigger)
	go f.startRecording(gen)
	return nil
}

// MarkSafe stops the recording window early. The alert is still
// committed with whatever media was captured.
func (f *Flow) MarkSafe() error {
	f.mu.Lock()
	if f.state != domain.FlowStateRecording {
		f.mu.Unlock()
		return ErrNoActiveRecording
	}
	req := f.stopReq
	f.mu.Unlock()

	select {
	case req <- domain.FlowReasonMarkedSafe:
	default:
	}
	return nil
}

// Close dismisses the flow. Pre-recording phases cancel outright;
// mid-recording the capture is stopped and the alert still commits,
// so closing the screen never loses a distress signal.
func (f *Flow) Close() {
	f.mu.Lock()
	switch f.state {
	case domain.FlowStateIdle, domain.FlowStateProcessing:
		f.mu.Unlock()
		return
	case domain.FlowStateRecording:
		req := f.stopReq
		f.mu.Unlock()
		select {
		case req <- domain.FlowReasonFlowClosed:
		default:
		}
		return
	default:
	}
	f.resetLocked()
	f.mu.Unlock()

	f.events.FlowStateChanged(domain.FlowStateIdle, domain.FlowReasonFlowClosed)
}

// Status summarizes the flow for the hosting screen.
func (f *Flow) Status() domain.FlowStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.FlowStatus{
		State:    f.state,
		Active:   f.state != domain.FlowStateIdle,
		AlertID:  f.alertID,
		MediaRef: f.mediaRef,
	}
}

// SOSActive reports whether any activation is underway.
func (f *Flow) SOSActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state != domain.FlowStateIdle
}

// ActivateFromTrigger satisfies the coordinator's activation gate.
func (f *Flow) ActivateFromTrigger(user domain.User) error {
	return f.ActivateDirect(user)
}

// begin starts a fresh activation generation. Caller holds f.mu.
func (f *Flow) begin(user domain.User) int {
	f.gen++
	f.user = user
	f.alertID = ""
	f.mediaRef = ""
	f.cancel = make(chan struct{})
	f.stopReq = make(chan domain.FlowReason, 1)
	return f.gen
}

// resetLocked cancels the current generation. Caller holds f.mu.
func (f *Flow) resetLocked() {
	f.gen++
	f.state = domain.FlowStateIdle
	if f.holdTimer != nil {
		f.holdTimer.Stop()
		f.holdTimer = nil
	}
	if f.cancel != nil {
		close(f.cancel)
		f.cancel = nil
	}
}

func (f *Flow) holdElapsed(gen int) {
	f.mu.Lock()
	if f.gen != gen || f.state != domain.FlowStateHolding {
		f.mu.Unlock()
		return
	}
	f.state = domain.FlowStateCountdown
	f.holdTimer = nil
	f.mu.Unlock()

	f.events.FlowStateChanged(domain.FlowStateCountdown, domain.FlowReasonCountdownStarted)
	go f.runCountdown(gen)
}

func (f *Flow) runCountdown(gen int) {
	cancel := f.cancelCh(gen)
	if cancel == nil {
		return
	}

	for left := f.cfg.CountdownTicks; left >= 1; left-- {
		f.events.CountdownTick(left)
		timer := time.NewTimer(f.cfg.TickInterval)
		select {
		case <-timer.C:
		case <-cancel:
			timer.Stop()
			return
		}
	}

	f.mu.Lock()
	if f.gen != gen || f.state != domain.FlowStateCountdown {
		f.mu.Unlock()
		return
	}
	f.state = domain.FlowStateActivated
	f.mu.Unlock()

	f.events.FlowStateChanged(domain.FlowStateActivated, domain.FlowReasonActivatedManual)
	f.startRecording(gen)
}

func (f *Flow) startRecording(gen int) {
	session, err := f.recorder.Start(context.Background(), f.cfg.Recorder)
	if err != nil {
		f.log.Warn("media capture unavailable", zap.Error(err))
		f.events.Toast("Camera unavailable. Sending alert without live media.")
		f.events.FlowStateChanged(domain.FlowStateProcessing, domain.FlowReasonCaptureUnavailable)
		f.commit(gen, "")
		return
	}

	f.mu.Lock()
	if f.gen != gen {
		f.mu.Unlock()
		_ = session.Stop()
		<-session.Done()
		return
	}
	f.state = domain.FlowStateRecording
	f.mu.Unlock()

	f.events.FlowStateChanged(domain.FlowStateRecording, domain.FlowReasonRecordingStarted)
	go f.runRecording(gen, session)
}

func (f *Flow) runRecording(gen int, session ports.RecordingSession) {
	cancel := f.cancelCh(gen)
	req := f.stopRequestCh(gen)
	if cancel == nil || req == nil {
		_ = session.Stop()
		<-session.Done()
		return
	}

	reason := domain.FlowReasonRecordingElapsed
	seconds := int(f.cfg.RecordingWindow / time.Second)
	if seconds < 1 {
		seconds = 1
	}

clock:
	for left := seconds; left >= 1; left-- {
		f.events.RecordingTick(left)
		timer := time.NewTimer(f.cfg.TickInterval)
		select {
		case <-timer.C:
		case r := <-req:
			timer.Stop()
			reason = r
			break clock
		case <-cancel:
			timer.Stop()
			reason = domain.FlowReasonFlowClosed
			break clock
		}
	}

	f.mu.Lock()
	if f.gen == gen && f.state == domain.FlowStateRecording {
		f.state = domain.FlowStateProcessing
	}
	f.mu.Unlock()

	f.events.FlowStateChanged(domain.FlowStateProcessing, reason)

	if err := session.Stop(); err != nil {
		f.log.Warn("failed to stop media recording cleanly", zap.Error(err))
	}
	result := <-session.Done()
	mediaRef := result.MediaRef
	if result.Err != nil {
		f.log.Warn("media finalize failed", zap.Error(result.Err))
		f.events.Toast("Recording could not be saved. Alert will be sent without media.")
		mediaRef = ""
	}

	f.commit(gen, mediaRef)
}

// commit writes the alert. It never skips the write for a live
// generation: whatever happened to the media, the distress signal
// must reach the store.
func (f *Flow) commit(gen int, mediaRef string) {
	f.mu.Lock()
	if f.gen != gen {
		f.mu.Unlock()
		return
	}
	user := f.user
	f.mu.Unlock()

	alert := f.alerts.CreateSOS(user, mediaRef)

	f.mu.Lock()
	if f.gen != gen {
		f.mu.Unlock()
		return
	}
	f.state = domain.FlowStateFinished
	f.alertID = alert.ID
	f.mediaRef = mediaRef
	f.mu.Unlock()

	f.log.Info("sos alert committed", zap.String("alert_id", alert.ID))
	f.events.FlowStateChanged(domain.FlowStateFinished, domain.FlowReasonAlertCommitted)
}

func (f *Flow) cancelCh(gen int) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != gen {
		return nil
	}
	return f.cancel
}

func (f *Flow) stopRequestCh(gen int) chan domain.FlowReason {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != gen {
		return nil
	}
	return f.stopReq
}
