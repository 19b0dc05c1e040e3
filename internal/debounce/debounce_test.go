package debounce_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kalervo/syncdaemon/internal/debounce"
)

func TestShouldProcessAllowsFirstCall(t *testing.T) {
	d := debounce.New(time.Minute, time.Second, time.Now())
	assert.True(t, d.ShouldProcess("/sync/report.pdf"))
}

func TestShouldProcessVetoesWithinCooldown(t *testing.T) {
	d := debounce.New(time.Minute, time.Second, time.Now())

	assert.True(t, d.ShouldProcess("/sync/report.pdf"))
	assert.False(t, d.ShouldProcess("/sync/report.pdf"))
}

func TestShouldProcessAllowsAfterCooldown(t *testing.T) {
	d := debounce.New(10*time.Millisecond, time.Second, time.Now())

	assert.True(t, d.ShouldProcess("/sync/report.pdf"))
	time.Sleep(20 * time.Millisecond)
	assert.True(t, d.ShouldProcess("/sync/report.pdf"))
}

func TestVetoedCallDoesNotResetWindow(t *testing.T) {
	d := debounce.New(30*time.Millisecond, time.Second, time.Now())

	assert.True(t, d.ShouldProcess("/sync/report.pdf"))
	time.Sleep(15 * time.Millisecond)
	assert.False(t, d.ShouldProcess("/sync/report.pdf"))
	time.Sleep(20 * time.Millisecond)
	assert.True(t, d.ShouldProcess("/sync/report.pdf"))
}

func TestIsPreExistingBeforeGraceWindow(t *testing.T) {
	start := time.Now()
	d := debounce.New(time.Second, 2*time.Second, start)

	assert.True(t, d.IsPreExisting(start.Add(-5*time.Second)))
	assert.False(t, d.IsPreExisting(start.Add(-time.Second)))
	assert.False(t, d.IsPreExisting(start.Add(time.Second)))
}

func TestNewDefaultsNonPositiveDurations(t *testing.T) {
	d := debounce.New(0, 0, time.Now())
	assert.True(t, d.ShouldProcess("/sync/x"))
	assert.False(t, d.ShouldProcess("/sync/x"))
}
