// Package registry holds the process-wide table of remotely callable procedures.
package registry

import "github.com/morezero/device-facades/pkg/rpc"

// DescribeInput holds parameters for the describe method.
type DescribeInput struct {
	// Name selects a single procedure.
	Name string `json:"name,omitempty"`
	// Receiver restricts the listing to one receiver type.
	Receiver string `json:"receiver,omitempty"`
	// Query is a case-insensitive substring matched against name and description.
	Query string `json:"query,omitempty"`
}

// DescribeOutput holds the result of the describe method.
type DescribeOutput struct {
	Procedures []ProcedureDescription `json:"procedures"`
	Receivers  []ReceiverDescription  `json:"receivers"`
	Total      int                    `json:"total"`
}

// ProcedureDescription is the introspection view of one procedure.
type ProcedureDescription struct {
	Name               string                 `json:"name"`
	Description        string                 `json:"description,omitempty"`
	Receiver           string                 `json:"receiver"`
	Version            string                 `json:"version"`
	Returns            rpc.Type               `json:"returns"`
	ReturnsDescription string                 `json:"returnsDescription,omitempty"`
	Params             []ParameterDescription `json:"params"`
}

// ParameterDescription is the introspection view of one parameter.
type ParameterDescription struct {
	Name        string      `json:"name"`
	Kind        rpc.Kind    `json:"kind"`
	Type        rpc.Type    `json:"type"`
	Default     interface{} `json:"default,omitempty"`
	Description string      `json:"description,omitempty"`
}

// ReceiverDescription summarizes a receiver type.
type ReceiverDescription struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Reentrant   bool     `json:"reentrant"`
	Procedures  []string `json:"procedures"`
}

// HealthOutput holds the result of the health check.
type HealthOutput struct {
	Status     string       `json:"status"`
	Checks     HealthChecks `json:"checks"`
	Procedures int          `json:"procedures"`
	Receivers  int          `json:"receivers"`
	Timestamp  string       `json:"timestamp"`
}

// HealthChecks holds individual health check results.
type HealthChecks struct {
	Frozen bool `json:"frozen"`
}
