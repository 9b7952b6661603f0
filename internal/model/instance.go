package model

import "time"

// Metadata is the free-form instance metadata a side-car attaches to every
// report; Group is the only field every caller relies on.
type Metadata struct {
	Group     string `json:"group"`
	Name      string `json:"name,omitempty"`
	PublicIP  string `json:"publicIp,omitempty"`
	PrivateIP string `json:"privateIp,omitempty"`
	Version   string `json:"version,omitempty"`
}

// InstanceState is the current view of one worker, keyed by InstanceID.
type InstanceState struct {
	InstanceID   string    `json:"instanceId"`
	InstanceType InstanceType `json:"instanceType"`
	Status       Status    `json:"-"`
	Provisioning bool      `json:"provisioning"`
	Timestamp    time.Time `json:"timestamp"`
	Metadata     Metadata  `json:"metadata"`

	ShutdownStatus   bool       `json:"shutdownStatus,omitempty"`
	ShutdownComplete *time.Time `json:"shutdownComplete,omitempty"`
	ReconfigureError string     `json:"reconfigureError,omitempty"`
	ShutdownError    string     `json:"shutdownError,omitempty"`
	StatsError       string     `json:"statsError,omitempty"`
	LastReconfigured *time.Time `json:"lastReconfigured,omitempty"`

	// IsShuttingDown is computed at ingestion time -- true when the stored
	// shutdown marker is set, the reported status carries graceful_shutdown,
	// or (nomad) the instance is no longer eligible for scheduling.
	IsShuttingDown bool `json:"isShuttingDown"`
}

// InstanceMetric is a single scalar sample keyed to an instant.
type InstanceMetric struct {
	InstanceID string    `json:"instanceId"`
	Timestamp  time.Time `json:"timestamp"`
	Value      float64   `json:"value"`
}

// StatsReport is the side-car's periodic payload, as defined in spec.md §6.
type StatsReport struct {
	Instance            Metadata    `json:"instance"`
	Timestamp           *time.Time  `json:"timestamp,omitempty"`
	Stats                map[string]any `json:"stats"`
	ShutdownStatus       bool        `json:"shutdownStatus,omitempty"`
	ShutdownError        string      `json:"shutdownError,omitempty"`
	ReconfigureError     string      `json:"reconfigureError,omitempty"`
	StatsError           string      `json:"statsError,omitempty"`
	ReconfigureComplete  *time.Time  `json:"reconfigureComplete,omitempty"`
	InstanceID           string      `json:"instanceId"`
	InstanceType         InstanceType `json:"instanceType"`
}

// PollVerdict is the side-car's next-action response for /stats, /status and
// /poll.
type PollVerdict struct {
	Shutdown    bool `json:"shutdown"`
	Reconfigure bool `json:"reconfigure"`
}

// CloudInstance is a cloud-provider-visible instance, as enumerated by a
// CloudInstanceManager.
type CloudInstance struct {
	InstanceID  string `json:"instanceId"`
	DisplayName string `json:"displayName"`
	CloudStatus string `json:"cloudStatus"`
}

const CloudStatusTerminated = "Terminated"
const CloudStatusRunning = "Running"
const CloudStatusProvisioning = "Provisioning"
