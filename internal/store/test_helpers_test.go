package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/jagtrack/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// addressing builds an ADDRESSING observation body.
func addressing(observer, instanceID, subject string, conf float64, at int64) ir.Inbound {
	return ir.Inbound{
		Category:  ir.CategoryAddressing,
		Observer:  observer,
		ElapsedMS: at,
		Activity:  &ir.ActivityReport{InstanceID: instanceID, Subject: subject, Confidence: conf},
	}
}
