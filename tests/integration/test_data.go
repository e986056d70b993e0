package integration

import (
	"fmt"
	"time"
)

// TestAccount generates unique test credentials using a timestamp
func TestAccount(suffix string) (identifier, password string) {
	ts := time.Now().UnixNano()
	identifier = fmt.Sprintf("test-%d-%s@example.com", ts, suffix)
	password = "Arcade-Pass1"
	return
}
