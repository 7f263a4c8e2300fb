//go:build tools

// Tool dependencies tracked in go.mod so `go generate ./...` runs mockgen
// at the pinned version on a fresh checkout.
package fleet_hub

import (
	_ "go.uber.org/mock/mockgen"
)
