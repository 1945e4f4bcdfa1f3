package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetIDPrefersDyno(t *testing.T) {
	t.Setenv("DYNO", "web.1")
	t.Setenv("WORKER_ID", "worker-7")
	assert.Equal(t, "web.1", GetID())
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("DYNO", "")
	t.Setenv("WORKER_ID", "worker-7")
	assert.Equal(t, "worker-7", GetID())

	t.Setenv("WORKER_ID", "")
	assert.Equal(t, "local", GetID())
}
