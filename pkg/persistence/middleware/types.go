package middleware

import "github.com/aretw0/arbiter/pkg/ports"

// Middleware allows wrapping a CommitStore to add behavior.
type Middleware func(ports.CommitStore) ports.CommitStore
