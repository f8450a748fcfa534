package engine

import (
	"testing"

	"go.uber.org/goleak"
)

// The event loop, queue and store all start goroutines; none may outlive
// the test that started them.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
