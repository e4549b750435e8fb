package models

import "time"

// EnvironmentStatus describes the current state of a hosting environment.
// Status and Health carry the provider's vocabulary verbatim
// (Launching/Updating/Ready/Terminating and Green/Yellow/Red/Grey).
type EnvironmentStatus struct {
	Application  string    `json:"application"`
	Environment  string    `json:"environment"`
	Status       string    `json:"status"`
	Health       string    `json:"health"`
	VersionLabel string    `json:"version_label"` // Currently deployed application version
	CNAME        string    `json:"cname,omitempty"`
	LastUpdated  time.Time `json:"last_updated"`
}

// EnvironmentEvent is a single event from the environment's rollout stream.
type EnvironmentEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Message   string    `json:"message"`
}

// DistributionStatus describes the current state of a CDN distribution.
// Status is Deployed once configuration changes have propagated, InProgress
// while they are rolling out.
type DistributionStatus struct {
	ID           string    `json:"id"`
	DomainName   string    `json:"domain_name"`
	Status       string    `json:"status"`
	Enabled      bool      `json:"enabled"`
	LastModified time.Time `json:"last_modified"`
}

// StackStatus is the combined read-only view of both halves of the stack.
type StackStatus struct {
	Backend  *EnvironmentStatus  `json:"backend,omitempty"`
	Events   []EnvironmentEvent  `json:"events,omitempty"`
	Frontend *DistributionStatus `json:"frontend,omitempty"`
}
