// Package config loads the pulse configuration file.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use $XDG_CONFIG_HOME/pulse/config.toml
//  3. If the file doesn't exist, start from built-in defaults
//  4. PULSE_* environment variables override file values
//  5. Empty or missing fields fall back to Default()
//
// Missing config files are NOT an error, but Validate rejects a config
// without a source URL, so the URL must come from the file or from
// PULSE_SOURCE_URL.
//
// # TOML Format
//
//	metrics_addr = "127.0.0.1:9464"
//
//	[source]
//	url = "https://script.google.com/macros/s/.../exec"
//	api_key = "..."
//	rows_path = "rows"        # "@this" for a bare array
//	timeout = "20s"
//
//	[source.columns]
//	id = "id"
//	status = "status"
//	approval = "approval"
//	last_processed = "lastProcessed"
//
//	[pending]
//	statuses = ["pending", "processing", "queued", "in progress"]
//	approved_marker = "approved"
//
//	[cache]
//	ttl_pending = "15s"
//	ttl_default = "60s"
//	ttl_quota = "5m"
//	backoff_base = "30s"
//
//	[poll]
//	fast = "15s"
//	medium = "60s"
//	slow = "5m"
//	active_window = "2m"
//	debounce = "1s"
//
//	[store]
//	type = "file"             # file, sqlite or none
//	path = "~/.local/state/pulse/snapshot.json"
//
//	[log]
//	level = "info"
//	format = "text"
//	file = "~/.local/state/pulse/pulse.log"
//
// Durations use Go syntax. Tilde expansion is performed on store.path and
// log.file.
//
// # Environment Overrides
//
//   - PULSE_SOURCE_URL, PULSE_API_KEY
//   - PULSE_STORE_TYPE, PULSE_STORE_PATH
//   - PULSE_LOG_LEVEL, PULSE_LOG_FORMAT, PULSE_LOG_FILE
//   - PULSE_METRICS_ADDR
package config
