// Package config parses process configuration from the environment
// (spec.md §6's configuration table) and fetches the side-car/admin auth
// secret from the active cloud's secret store at boot, following the
// teacher's RuntimeConfig.Parse convention.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the flat process configuration every cmd/ entrypoint parses at
// startup and threads through its constructors.
type Config struct {
	// Cadence, in seconds unless noted otherwise.
	AutoscalerIntervalSec          int `env:"AUTOSCALER_INTERVAL_SEC" envDefault:"30"`
	LauncherIntervalSec            int `env:"LAUNCHER_INTERVAL_SEC" envDefault:"30"`
	SanityIntervalSec              int `env:"SANITY_INTERVAL_SEC" envDefault:"60"`
	MetricsIntervalSec             int `env:"METRICS_INTERVAL_SEC" envDefault:"15"`
	GroupJobsCreationGracePeriodSec int `env:"GROUP_JOBS_CREATION_GRACE_PERIOD_SEC" envDefault:"10"`
	SanityJobsCreationGracePeriodSec int `env:"SANITY_JOBS_CREATION_GRACE_PERIOD_SEC" envDefault:"30"`

	// Lock lifetimes.
	GroupLockTTL      time.Duration `env:"GROUP_LOCK_TTL" envDefault:"2m"`
	JobCreationLockTTL time.Duration `env:"JOB_CREATION_LOCK_TTL" envDefault:"30s"`

	// State retention.
	IdleTTL            time.Duration `env:"IDLE_TTL" envDefault:"2m"`
	ProvisioningTTL    time.Duration `env:"PROVISIONING_TTL" envDefault:"10m"`
	ShutdownStatusTTL  time.Duration `env:"SHUTDOWN_STATUS_TTL" envDefault:"10m"`
	MetricTTL          time.Duration `env:"METRIC_TTL" envDefault:"30m"`
	AuditTTL           time.Duration `env:"AUDIT_TTL" envDefault:"168h"`
	GroupRelatedDataTTL time.Duration `env:"GROUP_RELATED_DATA_TTL" envDefault:"24h"`
	ReconfigureTTL     time.Duration `env:"RECONFIGURE_TTL" envDefault:"10m"`
	ProtectedTTLDefault time.Duration `env:"PROTECTED_TTL_DEFAULT" envDefault:"1h"`
	UntrackedCountTTL  time.Duration `env:"UNTRACKED_COUNT_TTL" envDefault:"5m"`

	// Job processing timeouts.
	AutoscalerProcessingTimeout time.Duration `env:"AUTOSCALER_PROCESSING_TIMEOUT" envDefault:"20s"`
	LauncherProcessingTimeout   time.Duration `env:"LAUNCHER_PROCESSING_TIMEOUT" envDefault:"60s"`
	SanityLoopProcessingTimeout time.Duration `env:"SANITY_LOOP_PROCESSING_TIMEOUT" envDefault:"30s"`

	// Launch throttle.
	MaxThrottleThreshold int `env:"MAX_THROTTLE_THRESHOLD" envDefault:"40"`

	// Cloud enumeration retry policy (spec.md §5's CloudRetryStrategy).
	ReportExtCallMaxTimeInSeconds  int `env:"REPORT_EXT_CALL_MAX_TIME_SECONDS" envDefault:"30"`
	ReportExtCallMaxDelayInSeconds int `env:"REPORT_EXT_CALL_MAX_DELAY_SECONDS" envDefault:"5"`

	// CloudProviders lists the adapters this process should wire; values
	// are "aws", "azure", "gcp".
	CloudProviders []string `env:"CLOUD_PROVIDERS" envSeparator:"," envDefault:"aws"`

	// DryRun is parsed from DRY_RUN but no component reads it: the launcher
	// calls the cloud adapters' Launch whatever its value.
	DryRun bool `env:"DRY_RUN" envDefault:"false"`

	// StoreProfile and LockProfile select "local" (in-process, single
	// replica) or "redis" (durable, multi-replica).
	StoreProfile string `env:"STORE_PROFILE" envDefault:"local"`
	LockProfile  string `env:"LOCK_PROFILE" envDefault:"local"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`

	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// AdminSharedSecret, when set, overrides the cloud-secret-store lookup
	// in ResolveSharedSecret -- useful for local development and tests.
	AdminSharedSecret string `env:"ADMIN_SHARED_SECRET"`

	// SeedGroupsFile, when set, is a JSON file of []model.InstanceGroup
	// applied at boot via group.Manager.SeedGroups and re-applied by the
	// admin "reset" action.
	SeedGroupsFile string `env:"SEED_GROUPS_FILE"`

	// AWS-specific.
	AWSRegion        string `awsEnv:"AWS_REGION" envDefault:"us-east-1"`
	AWSSecretName    string `awsEnv:"AWS_SECRET_NAME"`

	// Azure-specific.
	AzureVMSSResourceID string `azEnv:"AZURE_VMSS_RESOURCE_ID"`
	AzureKeyVaultName   string `azEnv:"AZURE_KEY_VAULT_NAME"`
	AzureSecretName     string `azEnv:"AZURE_SECRET_NAME"`

	// GCP-specific.
	GCPProject    string `gcpEnv:"GCP_PROJECT"`
	GCPLocation   string `gcpEnv:"GCP_LOCATION"`
	GCPIGMName    string `gcpEnv:"GCP_IGM_NAME"`
	GCPSecretName string `gcpEnv:"GCP_SECRET_NAME"`
}

// Parse parses environment variables into Config, generalizing the
// teacher's per-cloud tag-set pattern (awsEnv/azEnv/minMaxEnv) into one
// always-read "env" tag plus one cloud-specific tag selected at runtime.
func (c *Config) Parse() error {
	var allErrors env.AggregateError

	tags := []string{"env"}
	for _, provider := range c.cloudTagsPreParse() {
		tags = append(tags, provider)
	}

	for _, tag := range tags {
		if err := env.ParseWithOptions(c, env.Options{TagName: tag}); err != nil {
			if aggErr, ok := err.(env.AggregateError); ok { //nolint:errorlint
				allErrors.Errors = append(allErrors.Errors, aggErr.Errors...)
			} else {
				allErrors.Errors = append(allErrors.Errors, err)
			}
		}
	}

	if len(allErrors.Errors) > 0 {
		return allErrors
	}
	return nil
}

// cloudTagsPreParse reads CLOUD_PROVIDERS directly (ahead of the main
// Parse pass) so Parse knows which cloud-specific tag sets to apply.
func (c *Config) cloudTagsPreParse() []string {
	probe := struct {
		CloudProviders []string `env:"CLOUD_PROVIDERS" envSeparator:"," envDefault:"aws"`
	}{}
	if err := env.Parse(&probe); err != nil {
		return nil
	}
	c.CloudProviders = probe.CloudProviders

	tags := make([]string, 0, len(probe.CloudProviders))
	for _, p := range probe.CloudProviders {
		switch p {
		case "aws":
			tags = append(tags, "awsEnv")
		case "azure":
			tags = append(tags, "azEnv")
		case "gcp":
			tags = append(tags, "gcpEnv")
		}
	}
	return tags
}
