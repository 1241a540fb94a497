package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"civicsos/internal/bootstrap"
	"civicsos/internal/config"
	"civicsos/internal/domain"
	"civicsos/internal/store"
)

const (
	eventFlow      = "civicsos:flow"
	eventCountdown = "civicsos:countdown"
	eventRecording = "civicsos:recording"
	eventListening = "civicsos:listening"
	eventStore     = "civicsos:store"
	eventToast     = "civicsos:toast"
	eventHaptic    = "civicsos:haptic"
)

// seedOfficials are the responder accounts every context ensures on
// startup. Seeding is idempotent per email.
var seedOfficials = []domain.User{
	{Name: "District Control Room", Email: "control@district.gov.example", Phone: "1077"},
	{Name: "Municipal Ward Officer", Email: "ward@district.gov.example", Phone: "1078"},
}

// App is the Wails application root.
type App struct {
	ctx context.Context

	services    bootstrap.Services
	cfg         config.Config
	bootErr     error
	coordCancel context.CancelFunc
	unsubscribe func()

	userMu      sync.Mutex
	currentUser domain.User
	signedIn    bool
}

func NewApp() *App {
	return &App{}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, a, seedOfficials)
	if err != nil {
		a.bootErr = err
		a.Toast("Startup failed: " + err.Error())
		return
	}

	a.services = services
	a.cfg = services.Config
	a.unsubscribe = services.Store.Subscribe(a.onStoreChange)

	coordCtx, cancel := context.WithCancel(context.Background())
	a.coordCancel = cancel
	go services.Coordinator.Run(coordCtx)

	a.FlowStateChanged(domain.FlowStateIdle, "")
}

func (a *App) shutdown(context.Context) {
	if a.coordCancel != nil {
		a.coordCancel()
	}
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.services.Store != nil {
		a.services.Flow.Close()
		_ = a.services.Close()
	}
}

// SetActiveUser signs a user in for this context, persisting the
// account so other contexts see it.
func (a *App) SetActiveUser(user domain.User) (domain.User, error) {
	if err := a.requireReady(); err != nil {
		return domain.User{}, err
	}
	if strings.TrimSpace(user.Email) == "" {
		return domain.User{}, fmt.Errorf("user email is required")
	}
	if user.Role == "" {
		user.Role = domain.RoleCitizen
	}
	stored := a.services.Store.UpsertUser(user)

	a.userMu.Lock()
	a.currentUser = stored
	a.signedIn = true
	a.userMu.Unlock()
	return stored, nil
}

// UpdateTriggers updates the signed-in user's emergency-trigger
// preferences.
func (a *App) UpdateTriggers(triggers domain.TriggerConfig) (domain.User, error) {
	if err := a.requireReady(); err != nil {
		return domain.User{}, err
	}
	user, ok := a.CurrentUser()
	if !ok {
		return domain.User{}, fmt.Errorf("no user is signed in")
	}
	user.Triggers = triggers
	stored := a.services.Store.UpsertUser(user)

	a.userMu.Lock()
	a.currentUser = stored
	a.userMu.Unlock()
	return stored, nil
}

// CurrentUser returns the signed-in user, if any.
func (a *App) CurrentUser() (domain.User, bool) {
	a.userMu.Lock()
	defer a.userMu.Unlock()
	return a.currentUser, a.signedIn
}

// StartHold arms the SOS button.
func (a *App) StartHold() error {
	user, err := a.requireUser()
	if err != nil {
		return err
	}
	return a.services.Flow.PressHold(user)
}

// ReleaseHold ends a press. A release during the hold phase aborts;
// later releases are ignored.
func (a *App) ReleaseHold() {
	if a.requireReady() != nil {
		return
	}
	a.services.Flow.Release()
}

// StartCountdown enters the SOS countdown directly.
func (a *App) StartCountdown() error {
	user, err := a.requireUser()
	if err != nil {
		return err
	}
	return a.services.Flow.BeginCountdown(user)
}

// MarkSafe stops the SOS recording early; the alert still commits.
func (a *App) MarkSafe() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.services.Flow.MarkSafe()
}

// DismissFlow closes the SOS screen and releases capture hardware.
func (a *App) DismissFlow() {
	if a.requireReady() != nil {
		return
	}
	a.services.Flow.Close()
}

// GetFlowStatus returns the SOS flow state for the UI.
func (a *App) GetFlowStatus() domain.FlowStatus {
	if a.bootErr != nil {
		return domain.FlowStatus{State: domain.FlowStateIdle, Message: a.bootErr.Error()}
	}
	if a.services.Flow == nil {
		return domain.FlowStatus{State: domain.FlowStateIdle}
	}
	return a.services.Flow.Status()
}

// ReportMotion feeds one device-motion magnitude sample from the
// webview into the trigger coordinator.
func (a *App) ReportMotion(magnitude float64) {
	if a.requireReady() != nil {
		return
	}
	a.services.Motion.Offer(magnitude)
}

// CancelListening tears down a live passphrase listening session.
func (a *App) CancelListening() {
	if a.requireReady() != nil {
		return
	}
	a.services.Listener.Cancel()
}

// CreateReport files a civic issue for the signed-in user.
func (a *App) CreateReport(draft store.ReportDraft) (domain.Report, error) {
	user, err := a.requireUser()
	if err != nil {
		return domain.Report{}, err
	}
	return a.services.Store.CreateReport(draft, user), nil
}

// UpdateReportStatus sets a report's status, recording the actor in
// the audit trail.
func (a *App) UpdateReportStatus(id string, status domain.ReportStatus) (domain.Report, error) {
	user, err := a.requireUser()
	if err != nil {
		return domain.Report{}, err
	}
	return a.services.Store.UpdateReport(id, store.ReportPatch{Status: &status}, user.Name)
}

// AssignReport assigns a report to a crew or officer.
func (a *App) AssignReport(id string, assignee string) (domain.Report, error) {
	user, err := a.requireUser()
	if err != nil {
		return domain.Report{}, err
	}
	return a.services.Store.UpdateReport(id, store.ReportPatch{AssignedTo: &assignee}, user.Name)
}

// GetReports returns all reports, newest first.
func (a *App) GetReports() []domain.Report {
	if a.requireReady() != nil {
		return nil
	}
	return a.services.Store.Reports()
}

// GetAlerts returns all SOS alerts, newest first.
func (a *App) GetAlerts() []domain.SOSAlert {
	if a.requireReady() != nil {
		return nil
	}
	return a.services.Store.Alerts()
}

// ResolveAlert marks an SOS alert resolved. The alert is kept for
// auditability.
func (a *App) ResolveAlert(id string) (domain.SOSAlert, error) {
	user, err := a.requireUser()
	if err != nil {
		return domain.SOSAlert{}, err
	}
	return a.services.Store.ResolveSOS(id, user.Name)
}

// CreateAnnouncement publishes a command-center notice.
func (a *App) CreateAnnouncement(title string, content string) (domain.Announcement, error) {
	user, err := a.requireUser()
	if err != nil {
		return domain.Announcement{}, err
	}
	if user.Role != domain.RoleOfficial {
		return domain.Announcement{}, fmt.Errorf("only officials can publish announcements")
	}
	return a.services.Store.CreateAnnouncement(title, content, user.Name), nil
}

// GetAnnouncements returns all announcements.
func (a *App) GetAnnouncements() []domain.Announcement {
	if a.requireReady() != nil {
		return nil
	}
	return a.services.Store.Announcements()
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}
	return map[string]string{
		"provider":    "Deepgram",
		"model":       a.cfg.Deepgram.Model,
		"language":    a.cfg.Deepgram.Language,
		"audioInput":  a.cfg.Audio.InputDevice,
		"videoInput":  a.cfg.Video.InputDevice,
		"storeDir":    a.cfg.Store.Dir,
		"phraseRules": a.cfg.Phrase.RulesPath,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.services.Store == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) requireUser() (domain.User, error) {
	if err := a.requireReady(); err != nil {
		return domain.User{}, err
	}
	user, ok := a.CurrentUser()
	if !ok {
		return domain.User{}, fmt.Errorf("no user is signed in")
	}
	return user, nil
}

// onStoreChange reacts to committed mutations on behalf of the
// signed-in user: officials are alerted to new SOS signals, citizens
// to resolutions.
func (a *App) onStoreChange(event domain.ChangeEvent) {
	a.StoreChanged(event)

	user, ok := a.CurrentUser()
	if !ok {
		return
	}

	switch event.Kind {
	case domain.ChangeSOSAlert:
		if user.Role == domain.RoleOfficial && event.Alert != nil {
			a.Toast("SOS alert from " + event.Alert.User.Name)
			a.Haptic(200)
		}
	case domain.ChangeIssueUpdated:
		if user.Role == domain.RoleCitizen && event.Report != nil &&
			event.Report.Status == domain.ReportStatusResolved {
			a.Toast("Resolved: " + event.Report.Title)
		}
	}
}

// FlowStateChanged emits SOS lifecycle updates to the frontend.
func (a *App) FlowStateChanged(state domain.FlowState, reason domain.FlowReason) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventFlow, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": flowReasonMessage(reason),
	})
}

// CountdownTick emits the seconds left before activation.
func (a *App) CountdownTick(secondsLeft int) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventCountdown, map[string]int{"secondsLeft": secondsLeft})
}

// RecordingTick emits the seconds left in the recording window.
func (a *App) RecordingTick(secondsLeft int) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventRecording, map[string]int{"secondsLeft": secondsLeft})
}

// ListeningChanged emits passphrase-listening state.
func (a *App) ListeningChanged(active bool) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventListening, map[string]bool{"active": active})
}

// StoreChanged emits committed store mutations.
func (a *App) StoreChanged(event domain.ChangeEvent) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventStore, event)
}

// Toast emits a user-facing notice.
func (a *App) Toast(message string) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventToast, map[string]string{"message": message})
}

// Haptic asks the frontend to vibrate the device.
func (a *App) Haptic(durationMs int) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, eventHaptic, map[string]int{"durationMs": durationMs})
}

func flowReasonMessage(reason domain.FlowReason) string {
	switch reason {
	case domain.FlowReasonHoldStarted:
		return "Keep holding to start the countdown"
	case domain.FlowReasonHoldReleased:
		return "SOS cancelled"
	case domain.FlowReasonCountdownStarted:
		return "SOS activating"
	case domain.FlowReasonActivatedManual, domain.FlowReasonActivatedTrigger:
		return "SOS activated"
	case domain.FlowReasonRecordingStarted:
		return "Recording live evidence"
	case domain.FlowReasonCaptureUnavailable:
		return "Sending alert without live media"
	case domain.FlowReasonMarkedSafe:
		return "Marked safe. Finalizing..."
	case domain.FlowReasonRecordingElapsed:
		return "Recording complete. Finalizing..."
	case domain.FlowReasonAlertCommitted:
		return "Alert sent to responders"
	case domain.FlowReasonFlowClosed:
		return "SOS closed"
	default:
		return ""
	}
}
