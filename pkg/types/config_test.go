package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFetchConfigHTTPSettings(t *testing.T) {
	cfg := FetchConfig{
		UserAgent:    "agent/1.0",
		IndexTimeout: 20 * time.Second,
		PageTimeout:  30 * time.Second,
	}
	assert.Equal(t, HTTPConfig{Timeout: 20 * time.Second, UserAgent: "agent/1.0"}, cfg.Index())
	assert.Equal(t, HTTPConfig{Timeout: 30 * time.Second, UserAgent: "agent/1.0"}, cfg.Page())
}
