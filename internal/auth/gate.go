// Package auth resolves device credentials (authentication) and decides
// whether a device may act on a command (authorization). The two steps are
// independent so each can be tested and reasoned about on its own.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"mfmc/core-go/internal/store"
)

var (
	// ErrUnauthorized covers every authentication failure. Callers must not
	// reveal which check failed; Reason is for server-side logs only.
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// Failure is an authentication failure with its internal reason.
type Failure struct {
	Reason string
}

func (f *Failure) Error() string { return "unauthorized: " + f.Reason }

func (f *Failure) Unwrap() error { return ErrUnauthorized }

func fail(reason string) error { return &Failure{Reason: reason} }

// Gate turns an Authorization header into an active Device.
type Gate struct {
	devices   store.Devices
	hasher    *Hasher
	dummyHash string
}

// NewGate precomputes a throwaway hash so unknown usernames cost the same
// bcrypt comparison as known ones.
func NewGate(devices store.Devices, hasher *Hasher) (*Gate, error) {
	dummy, err := hasher.Hash([]byte("mfmc-unknown-user"))
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	return &Gate{devices: devices, hasher: hasher, dummyHash: dummy}, nil
}

// Authenticate accepts only the Basic scheme. Every credential problem is
// returned as an error wrapping ErrUnauthorized; store failures are returned
// as-is so they can be reported as server errors.
func (g *Gate) Authenticate(ctx context.Context, header string) (store.Device, error) {
	username, password, ok := ParseBasic(header)
	if !ok {
		return store.Device{}, fail("malformed or missing basic credentials")
	}

	cred, err := g.devices.CredentialByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = g.hasher.Compare(g.dummyHash, []byte(password))
			return store.Device{}, fail("unknown username")
		}
		return store.Device{}, err
	}
	if err := g.hasher.Compare(cred.PasswordHash, []byte(password)); err != nil {
		return store.Device{}, fail("password mismatch")
	}

	device, err := g.devices.DeviceByCredential(ctx, cred.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Device{}, fail("credential not linked to a device")
		}
		return store.Device{}, err
	}
	if !device.Active {
		return store.Device{}, fail("device inactive")
	}
	return device, nil
}

// ParseBasic decodes an "Authorization: Basic base64(user:pass)" header.
func ParseBasic(header string) (username, password string, ok bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return "", "", false
	}
	username, password, ok = strings.Cut(string(raw), ":")
	if !ok || username == "" {
		return "", "", false
	}
	return username, password, true
}

// Authorize reports whether device is a target of cmd, independent of
// whether cmd is still the newest command for that device.
func Authorize(cmd store.Command, device store.Device) error {
	if !device.Active || !cmd.Scope.Includes(device.ID) {
		return ErrForbidden
	}
	return nil
}
