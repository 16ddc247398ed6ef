// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for the graph package.
var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilNode is returned when a nil node is provided.
	ErrNilNode = errors.New("node must not be nil")

	// ErrNilModel is returned when Run is called without a model.
	ErrNilModel = errors.New("model must not be nil")

	// ErrValidation is returned when node inputs do not match the input schema.
	ErrValidation = errors.New("schema validation failed")

	// ErrModelContract is returned when a model response is not valid JSON
	// or does not satisfy the output schema.
	ErrModelContract = errors.New("model response violates output schema")

	// ErrInvalidClass is returned when a gate receives a label outside its classes.
	ErrInvalidClass = errors.New("invalid classification result")

	// ErrDuplicateNode is returned when the same node is added twice.
	ErrDuplicateNode = errors.New("node already in graph")

	// ErrDuplicateName is returned when a node name is already taken.
	ErrDuplicateName = errors.New("node name already in graph")

	// ErrDuplicateInput is returned when a second input node is added.
	ErrDuplicateInput = errors.New("input node already defined")

	// ErrDuplicateOutput is returned when a second output node is added.
	ErrDuplicateOutput = errors.New("output node already defined")

	// ErrNotMember is returned when connecting a node that is not in the graph.
	ErrNotMember = errors.New("node not in graph")

	// ErrNodeNotFound is returned when a node name cannot be resolved.
	ErrNodeNotFound = errors.New("node not found")

	// ErrNoInputSockets is returned when the connection target cannot consume values.
	ErrNoInputSockets = errors.New("target node has no input sockets")

	// ErrNoOutputConnections is returned when wiring out of an output node.
	ErrNoOutputConnections = errors.New("output node has no output connections")

	// ErrUnknownField is returned when a field name is not declared by a node.
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidField is returned for malformed field declarations.
	ErrInvalidField = errors.New("invalid field")

	// ErrUnknownNodeType is returned when deserializing an unknown node type.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrNoInputNode is returned when running a graph without an input node.
	ErrNoInputNode = errors.New("no input node defined")

	// ErrNoOutputNode is returned when running a graph without an output node.
	ErrNoOutputNode = errors.New("no output node defined")

	// ErrNoProgress is returned when no node is ready while the run is unfinished.
	ErrNoProgress = errors.New("no nodes to run")

	// ErrWavefrontLimit is returned when a run exceeds its wavefront budget.
	ErrWavefrontLimit = errors.New("wavefront limit exceeded")

	// ErrNodeTimeout is returned when a node exceeds its timeout.
	ErrNodeTimeout = errors.New("node execution timed out")
)

// NodeError wraps an error with the node that caused it.
type NodeError struct {
	NodeName string
	Err      error
}

// Error returns the error message.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q: %v", e.NodeName, e.Err)
}

// Unwrap returns the underlying error.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// NewNodeError creates a NodeError.
func NewNodeError(nodeName string, err error) *NodeError {
	return &NodeError{
		NodeName: nodeName,
		Err:      err,
	}
}

// FieldError reports which field failed validation.
type FieldError struct {
	Field  string
	Reason string
}

// Error returns the field and reason.
func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

// Unwrap makes FieldError match ErrValidation.
func (e *FieldError) Unwrap() error {
	return ErrValidation
}
