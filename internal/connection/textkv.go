package connection

import (
	"strconv"
	"strings"
)

// decodeTextKV splits a login/text PDU data segment (UTF-8, NUL-terminated
// key=value pairs concatenated, §4.5) into an ordered key/value list,
// preserving duplicate keys as RFC 3720 text negotiation sometimes requires
// (e.g. repeated SendTargets).
func decodeTextKV(data []byte) []KV {
	var out []KV
	for _, field := range strings.Split(strings.TrimRight(string(data), "\x00"), "\x00") {
		if field == "" {
			continue
		}
		k, v, found := strings.Cut(field, "=")
		if !found {
			continue
		}
		out = append(out, KV{Key: k, Value: v})
	}
	return out
}

// KV is one login/text negotiation key=value pair.
type KV struct {
	Key   string
	Value string
}

// encodeTextKV renders kvs back into the NUL-terminated wire form.
func encodeTextKV(kvs []KV) []byte {
	var b strings.Builder
	for _, kv := range kvs {
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(kv.Value)
		b.WriteByte(0)
	}
	return []byte(b.String())
}

func splitCSV(v string) []string {
	return strings.Split(v, ",")
}

func parseYesNo(v string) bool { return v == "Yes" }

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func parseUint32(v string, fallback uint32) uint32 {
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return fallback
	}
	return uint32(n)
}
