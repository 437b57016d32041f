package main

import (
	"testing"

	"github.com/emp-backend/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunPostgresMigrations_UnknownAction(t *testing.T) {
	err := runPostgresMigrations(&config.Config{}, "sideways")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action: sideways")
}

func TestRunClickHouseMigrations_OnlyUp(t *testing.T) {
	for _, action := range []string{"down", "version"} {
		err := runClickHouseMigrations(&config.Config{}, action)
		require.Error(t, err, action)
		assert.Contains(t, err.Error(), "only support 'up'")
	}
}

func TestRunClickHouseMigrations_Unreachable(t *testing.T) {
	cfg := &config.Config{Audit: config.AuditConfig{ClickHouse: config.ClickHouseConfig{
		Host:     "127.0.0.1",
		Port:     "1",
		Database: "employees",
		User:     "default",
	}}}

	err := runClickHouseMigrations(cfg, "up")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to ClickHouse")
}
