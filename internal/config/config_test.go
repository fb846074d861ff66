package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/v1", cfg.Server.BasePath)
	assert.Equal(t, "254", cfg.SMS.CountryCode)
	assert.Equal(t, "fs", cfg.Storage.Backend)
	assert.Equal(t, 15*time.Second, cfg.SMS.Timeout())
	assert.Contains(t, cfg.Permissions([]string{"admin"}), "task.reset")
	assert.NotContains(t, cfg.Permissions([]string{"worker"}), "task.create")
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte("sms:\n  endpoint: https://sms.example/messaging\n  timeout_seconds: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, "https://sms.example/messaging", cfg.SMS.Endpoint)
	assert.Equal(t, 3*time.Second, cfg.SMS.Timeout())
	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.NotEmpty(t, cfg.Auth.Roles["worker"].Permissions)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"base path":    "server:\n  base_path: v1\n",
		"backend":      "storage:\n  backend: s3\n",
		"minio bucket": "storage:\n  backend: minio\n  minio:\n    endpoint: localhost:9000\n",
		"kafka topic":  "audit:\n  kafka:\n    brokers: [localhost:9092]\n",
		"webhook url":  "webhooks:\n  - actions: [created_task]\n",
		"log format":   "log:\n  format: xml\n",
		"admin":        "admin:\n  username: \"\"\n",
	}
	for name, doc := range cases {
		_, err := FromYAML([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestDisabledWebhookNeedsNoURL(t *testing.T) {
	_, err := FromYAML([]byte("webhooks:\n  - enabled: false\n"))
	assert.NoError(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fl config init")

	cfg, err := LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, "admin", cfg.Admin.Username)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "fieldline.yml"), []byte(GenerateDefault()), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}
