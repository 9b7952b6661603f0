// Package internal wires every control-plane package into one Bootstrap,
// shared by every cmd/ entrypoint so the platform-specific mains differ
// only in how they trigger a pass (HTTP request, function invocation,
// always-on loop) and not in how the control plane itself is assembled.
package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/jitsi-contrib/autoscaler/internal/audit"
	"github.com/jitsi-contrib/autoscaler/internal/autoscaler"
	"github.com/jitsi-contrib/autoscaler/internal/cloud"
	"github.com/jitsi-contrib/autoscaler/internal/config"
	"github.com/jitsi-contrib/autoscaler/internal/group"
	"github.com/jitsi-contrib/autoscaler/internal/httpapi"
	"github.com/jitsi-contrib/autoscaler/internal/jobs"
	"github.com/jitsi-contrib/autoscaler/internal/launcher"
	"github.com/jitsi-contrib/autoscaler/internal/lock"
	"github.com/jitsi-contrib/autoscaler/internal/metricsloop"
	"github.com/jitsi-contrib/autoscaler/internal/model"
	"github.com/jitsi-contrib/autoscaler/internal/promexport"
	"github.com/jitsi-contrib/autoscaler/internal/reconfigure"
	"github.com/jitsi-contrib/autoscaler/internal/shutdown"
	"github.com/jitsi-contrib/autoscaler/internal/store"
	"github.com/jitsi-contrib/autoscaler/internal/tracker"
)

// Bootstrap holds every manager a cmd/ entrypoint needs, assembled once at
// process startup from a parsed config.Config.
type Bootstrap struct {
	Config config.Config

	Store store.InstanceStore
	Locks lock.Manager

	Groups      *group.Manager
	Audit       *audit.Log
	Shutdown    *shutdown.Manager
	Reconfigure *reconfigure.Manager
	Tracker     *tracker.Tracker

	Clouds map[string]cloud.Manager

	Autoscaler *autoscaler.Processor
	Launcher   *launcher.Launcher
	Jobs       *jobs.Manager

	Metrics  *metricsloop.MetricsLoop
	Sanity   *metricsloop.SanityLoop
	Report   *metricsloop.GroupReport
	Exporter *promexport.Exporter

	HTTP *httpapi.Server

	Log *slog.Logger
}

// New parses the process environment and assembles a Bootstrap. registry is
// the Prometheus registerer every metric is bound to; pass
// prometheus.DefaultRegisterer in production and a fresh prometheus.NewRegistry()
// in tests.
func New(ctx context.Context, logger *slog.Logger, registry prometheus.Registerer) (*Bootstrap, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var cfg config.Config
	if err := cfg.Parse(); err != nil {
		return nil, fmt.Errorf("could not parse environment variables: %w", err)
	}

	var redisClient *redis.Client
	if cfg.StoreProfile == "redis" || cfg.LockProfile == "redis" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	st, err := newStore(cfg, redisClient)
	if err != nil {
		return nil, err
	}

	locks, err := newLockManager(cfg, redisClient)
	if err != nil {
		return nil, err
	}

	clouds, err := newCloudManagers(ctx, cfg)
	if err != nil {
		return nil, err
	}

	auditLog := audit.New(st, cfg.AuditTTL)
	groups := group.New(st)
	shutdownMgr := shutdown.New(st, auditLog, cfg.ShutdownStatusTTL)
	reconfMgr := reconfigure.New(st, auditLog, cfg.ReconfigureTTL)
	ttl := store.TTLConfig{
		IdleTTL:           cfg.IdleTTL,
		ProvisioningTTL:   cfg.ProvisioningTTL,
		ShutdownStatusTTL: cfg.ShutdownStatusTTL,
	}
	trk := tracker.New(st, shutdownMgr, reconfMgr, auditLog, ttl, cfg.MetricTTL)

	exporter := promexport.New(registry)

	autoscalerProc := autoscaler.New(groups, trk, auditLog, locks, logger)
	launcherProc := launcher.New(groups, trk, auditLog, shutdownMgr, st, locks, clouds, exporter,
		launcher.Config{MaxThrottleThreshold: cfg.MaxThrottleThreshold}, logger)

	autoscalerQ, launcherQ, sanityQ := newQueues(cfg, redisClient)
	jobsMgr := jobs.New(groups, locks, autoscalerQ, launcherQ, sanityQ, logger)

	metrics := metricsloop.New(groups, trk, st, clouds, exporter, logger)
	sanity := metricsloop.NewSanityLoop(groups, trk, st, clouds, locks, cfg.UntrackedCountTTL, logger)
	report := metricsloop.NewGroupReport(groups, trk, shutdownMgr, reconfMgr, st, clouds)

	seedGroups, err := loadSeedGroups(cfg.SeedGroupsFile)
	if err != nil {
		return nil, err
	}
	if len(seedGroups) > 0 {
		exists, err := st.ExistsAtLeastOneGroup(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not check for existing groups: %w", err)
		}
		if !exists {
			if err := groups.SeedGroups(ctx, seedGroups); err != nil {
				return nil, fmt.Errorf("could not seed groups: %w", err)
			}
		}
	}

	secret, err := cfg.ResolveSharedSecret(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not resolve admin shared secret: %w", err)
	}
	auth := httpapi.NewSharedSecretAuthenticator(secret)
	httpSrv := httpapi.New(groups, trk, shutdownMgr, reconfMgr, auditLog, report, auth,
		httpapi.Config{SeedGroups: seedGroups, ProtectedTTLDefault: cfg.ProtectedTTLDefault}, logger)

	return &Bootstrap{
		Config: cfg,

		Store: st,
		Locks: locks,

		Groups:      groups,
		Audit:       auditLog,
		Shutdown:    shutdownMgr,
		Reconfigure: reconfMgr,
		Tracker:     trk,

		Clouds: clouds,

		Autoscaler: autoscalerProc,
		Launcher:   launcherProc,
		Jobs:       jobsMgr,

		Metrics:  metrics,
		Sanity:   sanity,
		Report:   report,
		Exporter: exporter,

		HTTP: httpSrv,

		Log: logger,
	}, nil
}

func newStore(cfg config.Config, redisClient *redis.Client) (store.InstanceStore, error) {
	switch cfg.StoreProfile {
	case "local":
		return store.NewLocalStore(), nil
	case "redis":
		return store.NewRedisStore(redisClient), nil
	default:
		return nil, fmt.Errorf("unknown STORE_PROFILE %q", cfg.StoreProfile)
	}
}

func newLockManager(cfg config.Config, redisClient *redis.Client) (lock.Manager, error) {
	lockCfg := lock.Config{GroupLockTTL: cfg.GroupLockTTL, JobCreationLockTTL: cfg.JobCreationLockTTL}
	switch cfg.LockProfile {
	case "local":
		return lock.NewInProcessManager(lockCfg), nil
	case "redis":
		return lock.NewRedsyncManager(redisClient, lockCfg), nil
	default:
		return nil, fmt.Errorf("unknown LOCK_PROFILE %q", cfg.LockProfile)
	}
}

func newQueues(cfg config.Config, redisClient *redis.Client) (autoscalerQ, launcherQ, sanityQ jobs.Queue) {
	if cfg.LockProfile != "redis" && cfg.StoreProfile != "redis" {
		return jobs.NewInProcessQueue(64), jobs.NewInProcessQueue(64), jobs.NewInProcessQueue(64)
	}
	return jobs.NewRedisQueue(redisClient, "autoscaler"),
		jobs.NewRedisQueue(redisClient, "launcher"),
		jobs.NewRedisQueue(redisClient, "sanity")
}

func newCloudManagers(ctx context.Context, cfg config.Config) (map[string]cloud.Manager, error) {
	clouds := make(map[string]cloud.Manager, len(cfg.CloudProviders))
	for _, provider := range cfg.CloudProviders {
		switch provider {
		case "aws":
			m, err := cloud.NewAWSManager(ctx, cfg.AWSRegion)
			if err != nil {
				return nil, fmt.Errorf("could not create AWS cloud manager: %w", err)
			}
			clouds["aws"] = m
		case "azure":
			m, err := cloud.NewAzureManager(ctx, cfg.AzureVMSSResourceID)
			if err != nil {
				return nil, fmt.Errorf("could not create Azure cloud manager: %w", err)
			}
			clouds["azure"] = m
		case "gcp":
			m, err := cloud.NewGCPManager(ctx, cfg.GCPProject, cfg.GCPLocation, cfg.GCPIGMName)
			if err != nil {
				return nil, fmt.Errorf("could not create GCP cloud manager: %w", err)
			}
			clouds["gcp"] = m
		default:
			return nil, fmt.Errorf("unknown cloud provider %q", provider)
		}
	}
	return clouds, nil
}

// loadSeedGroups reads path as a JSON array of model.InstanceGroup. An
// empty path is not an error -- it means no seed file was configured.
func loadSeedGroups(path string) ([]model.InstanceGroup, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read seed groups file %q: %w", path, err)
	}
	var groups []model.InstanceGroup
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("could not parse seed groups file %q: %w", path, err)
	}
	return groups, nil
}

// RunOnce drives one full pass of job production and consumption: produce
// fans autoscaler/launcher jobs out to their queues (and sanity jobs on its
// own cadence), then each queue is drained once. This is what the
// request/invocation-triggered entrypoints (Lambda, Cloud Run, Azure
// Functions) call once per trigger; the always-on daemon entrypoint instead
// calls RunOnce on its own ticker (see cmd/local).
func (b *Bootstrap) RunOnce(ctx context.Context) error {
	groupGrace := time.Duration(b.Config.GroupJobsCreationGracePeriodSec) * time.Second
	sanityGrace := time.Duration(b.Config.SanityJobsCreationGracePeriodSec) * time.Second

	if err := b.Jobs.Produce(ctx, groupGrace); err != nil {
		return fmt.Errorf("job production failed: %w", err)
	}
	if err := b.Jobs.ProduceSanity(ctx, sanityGrace); err != nil {
		return fmt.Errorf("sanity job production failed: %w", err)
	}

	names, err := b.Groups.List(ctx)
	if err != nil {
		return fmt.Errorf("could not list groups: %w", err)
	}

	for range names {
		if err := b.Jobs.Consume(ctx, b.Jobs.Autoscaler, b.Config.AutoscalerProcessingTimeout, b.Autoscaler.Process); err != nil {
			return err
		}
		if err := b.Jobs.Consume(ctx, b.Jobs.Launcher, b.Config.LauncherProcessingTimeout, b.Launcher.Process); err != nil {
			return err
		}
		if err := b.Jobs.Consume(ctx, b.Jobs.Sanity, b.Config.SanityLoopProcessingTimeout, b.Sanity.Process); err != nil {
			return err
		}
	}
	return nil
}
