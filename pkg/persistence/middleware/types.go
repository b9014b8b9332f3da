// Package middleware wraps snapshot stores with cross-cutting behavior such
// as encryption at rest and redaction of sensitive concept values.
package middleware

import "github.com/lys5588/NormCode-Psylens-sub002/pkg/ports"

// Middleware wraps a SnapshotStore to add behavior.
type Middleware func(ports.SnapshotStore) ports.SnapshotStore
