package gate_test

import (
	"time"

	"github.com/goliatone/go-gate"
)

// testClock is a hand-advanced clock shared by every component under test.
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func testConfig() *gate.Config {
	return &gate.Config{
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		Secrets: map[gate.Role]string{
			gate.RoleAdmin:  "admin-secret",
			gate.RoleStaff:  "staff-secret",
			gate.RoleUpload: "upload-secret",
			gate.RoleCron:   "cron-secret",
		},
		Issuer:          "gate-test",
		SessionTTL:      12 * time.Hour,
		StepUpTTL:       5 * time.Minute,
		RateLimitMax:    10,
		RateLimitWindow: 15 * time.Minute,
	}
}
