package domain

import "time"

// Role separates citizen accounts from official (responder) accounts.
type Role string

const (
	RoleCitizen  Role = "citizen"
	RoleOfficial Role = "official"
)

// Coordinates is a WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Location is a user's registered home location.
type Location struct {
	Country  string      `json:"country"`
	State    string      `json:"state"`
	District string      `json:"district"`
	Coords   Coordinates `json:"coords"`
}

// TriggerConfig holds a user's emergency-trigger preferences.
type TriggerConfig struct {
	ShakeEnabled      bool   `json:"shakeEnabled"`
	SecretPhrase      string `json:"secretPhrase,omitempty"`
	PassphraseEnabled bool   `json:"passphraseEnabled"`
}

// User is an account known to the store. Users are never deleted
// within a session; profile updates replace the stored record.
type User struct {
	Name      string        `json:"name"`
	Email     string        `json:"email"`
	Phone     string        `json:"phone"`
	Aadhaar   string        `json:"aadhaar,omitempty"`
	AvatarURL string        `json:"avatarUrl,omitempty"`
	Role      Role          `json:"role"`
	Location  Location      `json:"location"`
	Triggers  TriggerConfig `json:"triggers"`
}

// ReportStatus tracks a civic report through review.
type ReportStatus string

const (
	ReportStatusSubmitted   ReportStatus = "Submitted"
	ReportStatusUnderReview ReportStatus = "Under Review"
	ReportStatusResolved    ReportStatus = "Resolved"
)

// ReportUpdate is one audit trail entry on a report.
type ReportUpdate struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
	By      string    `json:"by"`
}

// Report is a citizen-filed civic issue.
type Report struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Status      ReportStatus   `json:"status"`
	CreatedAt   time.Time      `json:"createdAt"`
	Address     string         `json:"address"`
	Coords      Coordinates    `json:"coords"`
	PhotoRef    string         `json:"photoRef,omitempty"`
	VideoRef    string         `json:"videoRef,omitempty"`
	Priority    string         `json:"priority"`
	AssignedTo  string         `json:"assignedTo,omitempty"`
	Updates     []ReportUpdate `json:"updates"`
}

// AlertStatus is monotone: Active transitions to Resolved exactly once.
type AlertStatus string

const (
	AlertStatusActive   AlertStatus = "Active"
	AlertStatusResolved AlertStatus = "Resolved"
)

// AlertContact identifies the citizen who raised an alert.
type AlertContact struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// SOSAlert is a distress signal published to the store. MediaRef is
// empty when capture was unavailable; the alert is still valid.
type SOSAlert struct {
	ID        string       `json:"id"`
	User      AlertContact `json:"user"`
	CreatedAt time.Time    `json:"createdAt"`
	Address   string       `json:"address"`
	Coords    Coordinates  `json:"coords"`
	Status    AlertStatus  `json:"status"`
	MediaRef  string       `json:"mediaRef,omitempty"`
}

// Announcement is a broadcast notice from the command center.
type Announcement struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChangeKind tags a store change notification.
type ChangeKind string

const (
	ChangeNewIssue     ChangeKind = "NEW_ISSUE"
	ChangeIssueUpdated ChangeKind = "ISSUE_UPDATED"
	ChangeSOSAlert     ChangeKind = "SOS_ALERT"
	ChangeSOSResolved  ChangeKind = "SOS_RESOLVED"
	ChangeAnnouncement ChangeKind = "ANNOUNCEMENT"
	ChangeRemoteSync   ChangeKind = "REMOTE_SYNC"
)

// ChangeEvent is delivered to store subscribers at the moment a
// mutation commits. Exactly one payload field is set for entity
// events; REMOTE_SYNC carries none.
type ChangeEvent struct {
	Kind         ChangeKind    `json:"kind"`
	Report       *Report       `json:"report,omitempty"`
	Alert        *SOSAlert     `json:"alert,omitempty"`
	Announcement *Announcement `json:"announcement,omitempty"`
}

// FlowState models the SOS activation lifecycle. The recording
// sub-flow (recording, processing, finished) is only reachable
// through activated.
type FlowState string

const (
	FlowStateIdle       FlowState = "idle"
	FlowStateHolding    FlowState = "holding"
	FlowStateCountdown  FlowState = "countdown"
	FlowStateActivated  FlowState = "activated"
	FlowStateRecording  FlowState = "recording"
	FlowStateProcessing FlowState = "processing"
	FlowStateFinished   FlowState = "finished"
)

// FlowReason provides a structured reason for flow transitions.
type FlowReason string

const (
	FlowReasonHoldStarted        FlowReason = "hold_started"
	FlowReasonHoldReleased       FlowReason = "hold_released"
	FlowReasonCountdownStarted   FlowReason = "countdown_started"
	FlowReasonActivatedManual    FlowReason = "activated_manual"
	FlowReasonActivatedTrigger   FlowReason = "activated_trigger"
	FlowReasonRecordingStarted   FlowReason = "recording_started"
	FlowReasonCaptureUnavailable FlowReason = "capture_unavailable"
	FlowReasonMarkedSafe         FlowReason = "marked_safe"
	FlowReasonRecordingElapsed   FlowReason = "recording_elapsed"
	FlowReasonAlertCommitted     FlowReason = "alert_committed"
	FlowReasonFlowClosed         FlowReason = "flow_closed"
)

// FlowStatus summarizes a flow for the hosting screen.
type FlowStatus struct {
	State    FlowState `json:"state"`
	Active   bool      `json:"active"`
	AlertID  string    `json:"alertId,omitempty"`
	MediaRef string    `json:"mediaRef,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptKindPartial TranscriptKind = "partial"
	TranscriptKindFinal   TranscriptKind = "final"
)

// TranscriptEvent is incremental transcription output from the
// speech channel.
type TranscriptEvent struct {
	Kind TranscriptKind `json:"kind"`
	Text string         `json:"text"`
}

// ListenOutcome is the terminal signal of a passphrase listening
// session. Matched, timeout and error are mutually exclusive;
// cancelled covers external teardown.
type ListenOutcome string

const (
	ListenMatched   ListenOutcome = "matched"
	ListenTimedOut  ListenOutcome = "timeout"
	ListenFailed    ListenOutcome = "error"
	ListenCancelled ListenOutcome = "cancelled"
)

// ListenResult is delivered exactly once per listening session.
type ListenResult struct {
	Outcome ListenOutcome
	Err     error
}
