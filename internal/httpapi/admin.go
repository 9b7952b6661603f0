package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jitsi-contrib/autoscaler/internal/autoscalererr"
	"github.com/jitsi-contrib/autoscaler/internal/model"
)

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.List(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, groups)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	g, err := s.groups.Get(r.Context(), name)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if g == nil {
		writeError(w, s.log, autoscalererr.Wrap(autoscalererr.ErrNotFound, fmt.Errorf("group %q not found", name)))
		return
	}
	writeJSON(w, s.log, http.StatusOK, g)
}

// handlePutGroup replaces (or creates) a group. The path name must equal the
// body's name -- spec.md §6's guard against a mismatched rename-by-accident.
func (s *Server) handlePutGroup(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var body model.InstanceGroup
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, s.log, autoscalererr.Wrap(autoscalererr.ErrValidation, err))
		return
	}
	if body.Name != name {
		writeError(w, s.log, autoscalererr.Wrap(autoscalererr.ErrValidation,
			fmt.Errorf("path name %q does not match body name %q", name, body.Name)))
		return
	}

	if err := s.groups.Upsert(r.Context(), body); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, body)
}

func (s *Server) handleDeleteGroup(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := s.groups.Delete(r.Context(), name); err != nil {
		writeError(w, s.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// desiredUpdate is any subset of a group's scaling bounds (spec.md §6's
// "body: any subset of {minDesired, maxDesired, desiredCount}").
type desiredUpdate struct {
	MinDesired   *int `json:"minDesired"`
	MaxDesired   *int `json:"maxDesired"`
	DesiredCount *int `json:"desiredCount"`
}

func (s *Server) handlePutDesired(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var body desiredUpdate
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, s.log, autoscalererr.Wrap(autoscalererr.ErrValidation, err))
		return
	}

	ctx := r.Context()
	g, err := s.groups.Get(ctx, name)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if g == nil {
		writeError(w, s.log, autoscalererr.Wrap(autoscalererr.ErrNotFound, fmt.Errorf("group %q not found", name)))
		return
	}

	if body.MinDesired != nil {
		g.ScalingOptions.MinDesired = *body.MinDesired
	}
	if body.MaxDesired != nil {
		g.ScalingOptions.MaxDesired = *body.MaxDesired
	}
	if body.DesiredCount != nil {
		g.ScalingOptions.DesiredCount = *body.DesiredCount
	}
	if err := g.ScalingOptions.Validate(); err != nil {
		writeError(w, s.log, autoscalererr.Wrap(autoscalererr.ErrValidation, err))
		return
	}

	if err := s.groups.Upsert(ctx, *g); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.groups.ArmAutoscaleGrace(ctx, g.Name, time.Duration(g.GracePeriodTTLSec)*time.Second); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, g)
}

type scalingActivitiesUpdate struct {
	EnableAutoScale *bool `json:"enableAutoScale"`
	EnableLaunch    *bool `json:"enableLaunch"`
}

func (s *Server) handlePutScalingActivities(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var body scalingActivitiesUpdate
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, s.log, autoscalererr.Wrap(autoscalererr.ErrValidation, err))
		return
	}

	ctx := r.Context()
	g, err := s.groups.Get(ctx, name)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if g == nil {
		writeError(w, s.log, autoscalererr.Wrap(autoscalererr.ErrNotFound, fmt.Errorf("group %q not found", name)))
		return
	}

	if body.EnableAutoScale != nil {
		g.EnableAutoScale = *body.EnableAutoScale
	}
	if body.EnableLaunch != nil {
		g.EnableLaunch = *body.EnableLaunch
	}

	if err := s.groups.Upsert(ctx, *g); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, g)
}

type launchProtectedRequest struct {
	Count                   int    `json:"count"`
	ProtectedTTLSec         int    `json:"protectedTTLSec"`
	InstanceConfigurationID string `json:"instanceConfigurationId"`
}

func (s *Server) handleLaunchProtected(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var body launchProtectedRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, s.log, autoscalererr.Wrap(autoscalererr.ErrValidation, err))
		return
	}

	ctx := r.Context()
	g, err := s.groups.LaunchProtected(ctx, name, body.Count, body.InstanceConfigurationID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	if err := s.groups.ArmAutoscaleGrace(ctx, g.Name, time.Duration(g.GracePeriodTTLSec)*time.Second); err != nil {
		writeError(w, s.log, err)
		return
	}

	protectedTTL := s.protectedTTLDefault
	if body.ProtectedTTLSec > 0 {
		protectedTTL = time.Duration(body.ProtectedTTLSec) * time.Second
	}
	if err := s.groups.ProtectGroup(ctx, g.Name, protectedTTL); err != nil {
		writeError(w, s.log, err)
		return
	}

	writeJSON(w, s.log, http.StatusOK, g)
}

// handleResetGroups re-applies the seed group definitions this Server was
// constructed with, leaving existing groups' desiredCount untouched.
func (s *Server) handleResetGroups(w http.ResponseWriter, r *http.Request) {
	if err := s.groups.ResetGroups(r.Context(), s.seedGroups); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, map[string]bool{"reset": true})
}

func (s *Server) handleGroupReport(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	report, err := s.report.Generate(r.Context(), name, nil)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, report)
}

func (s *Server) handleGroupAudit(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	records, err := s.audit.Generate(r.Context(), name)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, records)
}
