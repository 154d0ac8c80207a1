package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(10 * time.Millisecond)

	d := timer.Duration()
	assert.GreaterOrEqual(t, d, 10*time.Millisecond)
}

func TestTimerObserve(t *testing.T) {
	timer := NewTimer()

	// Observations must not panic on registered collectors.
	timer.ObserveDuration(JobDuration)
	timer.ObserveDurationVec(APIRequestDuration, "/api/v1/heartbeat")
}

func TestHandler(t *testing.T) {
	assert.NotNil(t, Handler())
}
