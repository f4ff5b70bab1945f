package config

import "strings"

// GetAllSettings returns the non-secret settings for diagnostics endpoints.
func (c *Config) GetAllSettings() map[string]any {
	return map[string]any{
		"app_version":               c.App.Version,
		"app_debug":                 c.App.Debug,
		"db_driver":                 c.Database.Driver,
		"valkey_enabled":            c.Database.ValkeyEnabled,
		"whatsapp_api_version":      c.Whatsapp.APIVersion,
		"whatsapp_http_timeout":     c.Whatsapp.HTTPTimeout.String(),
		"whatsapp_max_upload_size":  c.Whatsapp.MaxUploadSize,
		"message_worker_pool_size":  c.WorkerPool.Size,
		"message_worker_queue_size": c.WorkerPool.QueueSize,
	}
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
