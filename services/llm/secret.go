// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/awnumar/memguard"
)

// DefaultSecretDir is where container secrets are mounted.
const DefaultSecretDir = "/run/secrets"

// Secret holds a credential in an encrypted memguard enclave.
//
// Thread Safety:
//
//	Secret is safe for concurrent use. Each Reveal opens a short-lived
//	locked buffer that is destroyed before returning.
type Secret struct {
	enclave *memguard.Enclave
}

// NewSecret seals value. An empty value yields a nil Secret.
func NewSecret(value string) *Secret {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &Secret{enclave: memguard.NewEnclave([]byte(value))}
}

// ResolveSecret looks up a credential.
//
// Description:
//
//	Tries the explicit value, then the environment variable envName, then
//	the file <DefaultSecretDir>/<fileName>. Returns nil if none is set.
func ResolveSecret(explicit, envName, fileName string) *Secret {
	if s := NewSecret(explicit); s != nil {
		return s
	}
	if envName != "" {
		if s := NewSecret(os.Getenv(envName)); s != nil {
			return s
		}
	}
	if fileName != "" {
		raw, err := os.ReadFile(DefaultSecretDir + "/" + fileName)
		if err == nil {
			return NewSecret(string(raw))
		}
	}
	return nil
}

// Reveal calls fn with the plaintext value.
func (s *Secret) Reveal(fn func(value string) error) error {
	if s == nil {
		return ErrMissingAPIKey
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return fmt.Errorf("opening secret enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(buf.String())
}

// String never prints the secret.
func (s *Secret) String() string {
	if s == nil {
		return "<unset>"
	}
	return "<redacted>"
}

// bearerTransport injects an Authorization header from a Secret on every request.
type bearerTransport struct {
	secret *Secret
	base   http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.secret == nil {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	err := t.secret.Reveal(func(value string) error {
		clone.Header.Set("Authorization", "Bearer "+value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t.base.RoundTrip(clone)
}
