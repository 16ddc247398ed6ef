// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package topology

import "errors"

var (
	// ErrInvalidDocument is returned when an editor document fails validation.
	ErrInvalidDocument = errors.New("invalid editor document")

	// ErrUnknownNodeType is returned for node types other than input, output,
	// processor and gate.
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrGateField is returned when a gate does not declare exactly one
	// classification field.
	ErrGateField = errors.New("gate must have exactly one classification field")

	// ErrUnresolvedField is returned when an edge names a field id the node
	// does not declare.
	ErrUnresolvedField = errors.New("edge field not declared by node")

	// ErrInvalidHCL is returned when an HCL topology cannot be parsed or decoded.
	ErrInvalidHCL = errors.New("invalid HCL topology")
)
