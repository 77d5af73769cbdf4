// Package logtail reads the tail of the engine log for the dashboard's log
// panel.
//
// # Reading
//
// Read keeps a ring buffer of maxLines entries and scans the file once, so
// memory stays proportional to the panel height rather than the file size.
// Lines come back oldest first. A missing file yields no lines and no error,
// which is the normal state before the engine has logged anything.
//
//	lines, err := logtail.Read(cfg.LogPath(), 200)
//
// # Parsing
//
// Parse recognises the two encodings the logging package writes:
//
//	time=2026-10-19T09:15:02.000Z level=WARN msg="fetch failed" err="quota exceeded"
//	{"time":"2026-10-19T09:15:02Z","level":"WARN","msg":"fetch failed"}
//
// It extracts time, level and message so the panel can colour by severity
// and Filter can hide chatter below a chosen level. Lines that match neither
// encoding are kept with LevelUnknown.
package logtail
