// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package optimizer

import "errors"

// Sentinel errors for the optimizer package.
var (
	// ErrNilGraph is returned when an optimizer is built without a graph.
	ErrNilGraph = errors.New("graph must not be nil")

	// ErrNilModel is returned when an optimizer is built without a model.
	ErrNilModel = errors.New("model must not be nil")

	// ErrInvalidConfig is returned for out-of-range optimizer settings.
	ErrInvalidConfig = errors.New("invalid optimizer configuration")

	// ErrNoProposal is returned when the model returns no instruction candidates.
	ErrNoProposal = errors.New("model returned no instruction proposal")

	// ErrDataset is returned for malformed column data.
	ErrDataset = errors.New("invalid dataset")
)
