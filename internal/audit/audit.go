// Package audit implements the append-only, TTL-bounded event log of
// spec.md §4.3. Audit is a leaf package: it depends only on store.
package audit

import (
	"context"
	"sort"
	"time"

	"github.com/jitsi-contrib/autoscaler/internal/autoscalererr"
	"github.com/jitsi-contrib/autoscaler/internal/model"
	"github.com/jitsi-contrib/autoscaler/internal/store"
)

// Log appends and reads audit events for a store.
type Log struct {
	store store.InstanceStore
	ttl   time.Duration
}

// New builds an audit log writing through to store with the given TTL
// (spec.md's auditTTL).
func New(st store.InstanceStore, ttl time.Duration) *Log {
	return &Log{store: st, ttl: ttl}
}

func (l *Log) append(ctx context.Context, group, instanceID string, kind model.AuditKind, payload any) error {
	event := model.AuditEvent{
		Group:      group,
		InstanceID: instanceID,
		Kind:       kind,
		Timestamp:  time.Now(),
		Payload:    payload,
	}
	if err := l.store.AppendAudit(ctx, event, l.ttl); err != nil {
		return autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}
	return nil
}

// LatestStatus records that a side-car report was ingested for instanceID.
func (l *Log) LatestStatus(ctx context.Context, group, instanceID string) error {
	return l.append(ctx, group, instanceID, model.AuditLatestStatus, nil)
}

// RequestToLaunch records a launcher-issued launch request for instanceID.
func (l *Log) RequestToLaunch(ctx context.Context, group, instanceID string) error {
	return l.append(ctx, group, instanceID, model.AuditRequestToLaunch, nil)
}

// RequestToTerminate records a launcher-issued termination request.
func (l *Log) RequestToTerminate(ctx context.Context, group, instanceID string) error {
	return l.append(ctx, group, instanceID, model.AuditRequestToTerminate, nil)
}

// ShutdownConfirmation records a side-car's (or admin's) shutdown
// confirmation for instanceID.
func (l *Log) ShutdownConfirmation(ctx context.Context, group, instanceID string) error {
	return l.append(ctx, group, instanceID, model.AuditShutdownConfirm, nil)
}

// Reconfigure records a reconfigure-intent marker.
func (l *Log) Reconfigure(ctx context.Context, group, instanceID string) error {
	return l.append(ctx, group, instanceID, model.AuditReconfigure, nil)
}

// UnsetReconfigure records a reconfigure-marker clear.
func (l *Log) UnsetReconfigure(ctx context.Context, group, instanceID string) error {
	return l.append(ctx, group, instanceID, model.AuditUnsetReconfigure, nil)
}

// AutoscalerAction records an increase/decrease desired-count decision.
func (l *Log) AutoscalerAction(ctx context.Context, group string, payload model.AutoscalerActionPayload) error {
	return l.append(ctx, group, "", model.AuditAutoscalerAction, payload)
}

// LauncherAction records a scale-up/scale-down action.
func (l *Log) LauncherAction(ctx context.Context, group string, payload model.LauncherActionPayload) error {
	return l.append(ctx, group, "", model.AuditLauncherAction, payload)
}

// UpdateLastAutoScalerRun timestamps the most recent autoscaler pass.
func (l *Log) UpdateLastAutoScalerRun(ctx context.Context, group string) error {
	return l.append(ctx, group, "", model.AuditLastAutoscalerRun, nil)
}

// UpdateLastLauncherRun timestamps the most recent launcher pass.
func (l *Log) UpdateLastLauncherRun(ctx context.Context, group string) error {
	return l.append(ctx, group, "", model.AuditLastLauncherRun, nil)
}

// Generate returns the group's audit trail folded into one record per
// instance, sorted by timestamp ascending before folding so that each
// field ends up holding the most recent timestamp of its kind (spec.md
// §4.3).
func (l *Log) Generate(ctx context.Context, group string) (map[string]model.InstanceAuditRecord, error) {
	events, err := l.store.FetchAudit(ctx, group)
	if err != nil {
		return nil, autoscalererr.Wrap(autoscalererr.ErrStore, err)
	}

	sort.Slice(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

	records := make(map[string]model.InstanceAuditRecord)
	for _, e := range events {
		if e.InstanceID == "" {
			continue
		}
		rec := records[e.InstanceID]
		rec.InstanceID = e.InstanceID
		ts := e.Timestamp
		switch e.Kind {
		case model.AuditRequestToLaunch:
			rec.RequestToLaunch = &ts
		case model.AuditLatestStatus:
			rec.LatestStatus = &ts
		case model.AuditRequestToTerminate:
			rec.RequestToTerminate = &ts
		case model.AuditShutdownConfirm:
			rec.ShutdownConfirm = &ts
		case model.AuditReconfigure:
			rec.Reconfigure = &ts
		case model.AuditUnsetReconfigure:
			rec.UnsetReconfigure = &ts
		}
		records[e.InstanceID] = rec
	}
	return records, nil
}
