package model

import "time"

// AuditKind enumerates the event shapes appended to the audit log (§4.3).
type AuditKind string

const (
	AuditLatestStatus        AuditKind = "latest-status"
	AuditRequestToLaunch     AuditKind = "request-to-launch"
	AuditRequestToTerminate  AuditKind = "request-to-terminate"
	AuditShutdownConfirm     AuditKind = "shutdown-confirmation"
	AuditReconfigure         AuditKind = "reconfigure"
	AuditUnsetReconfigure    AuditKind = "unset-reconfigure"
	AuditAutoscalerAction    AuditKind = "autoscaler-action"
	AuditLauncherAction      AuditKind = "launcher-action"
	AuditLastAutoscalerRun   AuditKind = "last-autoscaler-run"
	AuditLastLauncherRun     AuditKind = "last-launcher-run"
)

// AutoscalerActionType distinguishes the two autoscaler-action payload
// shapes.
type AutoscalerActionType string

const (
	ActionIncreaseDesiredCount AutoscalerActionType = "increaseDesiredCount"
	ActionDecreaseDesiredCount AutoscalerActionType = "decreaseDesiredCount"
)

// LauncherActionType distinguishes the two launcher-action payload shapes.
type LauncherActionType string

const (
	ActionScaleUp   LauncherActionType = "scaleUp"
	ActionScaleDown LauncherActionType = "scaleDown"
)

// AuditEvent is one append-only log entry, keyed by group+instance+kind.
type AuditEvent struct {
	Group      string    `json:"group"`
	InstanceID string    `json:"instanceId"`
	Kind       AuditKind `json:"kind"`
	Timestamp  time.Time `json:"timestamp"`
	Payload    any       `json:"payload,omitempty"`
}

// AutoscalerActionPayload is the body of an AuditAutoscalerAction event.
type AutoscalerActionPayload struct {
	Timestamp       time.Time             `json:"timestamp"`
	ActionType      AutoscalerActionType  `json:"actionType"`
	Count           int                   `json:"count"`
	OldDesiredCount int                   `json:"oldDesiredCount"`
	NewDesiredCount int                   `json:"newDesiredCount"`
	ScaleMetrics    []float64             `json:"scaleMetrics"`
}

// LauncherActionPayload is the body of an AuditLauncherAction event.
type LauncherActionPayload struct {
	Timestamp     time.Time          `json:"timestamp"`
	ActionType    LauncherActionType `json:"actionType"`
	Count         int                `json:"count"`
	DesiredCount  int                `json:"desiredCount"`
	ScaleQuantity int                `json:"scaleQuantity"`
}

// InstanceAuditRecord is the per-instance fold produced by
// audit.Log.Generate: the most recent timestamp of each event kind seen for
// that instance.
type InstanceAuditRecord struct {
	InstanceID        string     `json:"instanceId"`
	RequestToLaunch    *time.Time `json:"requestToLaunch,omitempty"`
	LatestStatus       *time.Time `json:"latestStatus,omitempty"`
	RequestToTerminate *time.Time `json:"requestToTerminate,omitempty"`
	ShutdownConfirm    *time.Time `json:"shutdownConfirmation,omitempty"`
	Reconfigure        *time.Time `json:"reconfigure,omitempty"`
	UnsetReconfigure   *time.Time `json:"unsetReconfigure,omitempty"`
}
