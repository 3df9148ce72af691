package storage

import (
	"context"
	"testing"
	"time"
)

// testContext bounds integration tests against external stores
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
