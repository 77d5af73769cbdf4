package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// Read returns at most maxLines from the end of the file at path. A
// non-positive maxLines returns the whole file. A missing file is not an error.
func Read(path string, maxLines int) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if maxLines <= 0 {
		var lines []string
		for scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
		return lines, nil
	}

	ring := make([]string, maxLines)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// Level is the severity of a log line, as far as it can be recognised.
type Level int

const (
	LevelUnknown Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return ""
	}
}

// Entry is one log line with the fields the log panel highlights.
type Entry struct {
	Raw     string
	Level   Level
	Time    string
	Message string
}

// Parse recognises slog text ("time=... level=INFO msg=...") and JSON records.
// Anything else is returned with only Raw set.
func Parse(line string) Entry {
	entry := Entry{Raw: line}
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") && gjson.Valid(trimmed) {
		fields := gjson.GetMany(trimmed, "time", "level", "msg")
		entry.Time = fields[0].String()
		entry.Level = parseLevel(fields[1].String())
		entry.Message = fields[2].String()
		return entry
	}

	entry.Time = textField(trimmed, "time")
	entry.Level = parseLevel(textField(trimmed, "level"))
	entry.Message = textField(trimmed, "msg")
	return entry
}

// ParseLines parses every line.
func ParseLines(lines []string) []Entry {
	out := make([]Entry, len(lines))
	for i, line := range lines {
		out[i] = Parse(line)
	}
	return out
}

// Filter keeps entries at or above min. Unrecognised lines are kept so
// continuation output is never hidden.
func Filter(entries []Entry, min Level) []Entry {
	if min <= LevelDebug {
		return entries
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Level == LevelUnknown || e.Level >= min {
			out = append(out, e)
		}
	}
	return out
}

func parseLevel(value string) Level {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelUnknown
	}
}

// textField extracts key=value from a slog text record, honouring the
// quoting slog applies to values containing spaces.
func textField(line, key string) string {
	prefix := key + "="
	idx := 0
	for {
		pos := strings.Index(line[idx:], prefix)
		if pos < 0 {
			return ""
		}
		pos += idx
		if pos == 0 || line[pos-1] == ' ' {
			idx = pos + len(prefix)
			break
		}
		idx = pos + len(prefix)
	}

	rest := line[idx:]
	if strings.HasPrefix(rest, `"`) {
		var b strings.Builder
		for i := 1; i < len(rest); i++ {
			switch rest[i] {
			case '\\':
				if i+1 < len(rest) {
					i++
					b.WriteByte(rest[i])
				}
			case '"':
				return b.String()
			default:
				b.WriteByte(rest[i])
			}
		}
		return b.String()
	}
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		return rest[:end]
	}
	return rest
}
