package logger

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

type structuredHandler struct {
	cfg   handlerConfig
	attrs []slog.Attr
	// prefix is the dotted group path applied to every attr key.
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	return &structuredHandler{cfg: cfg}
}

// Enabled reports whether the handler allows processing the provided level.
func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.cfg.level != nil {
		min = h.cfg.level.Level()
	}
	return level >= min
}

// Handle renders r as one line: record basics, handler attrs, record attrs,
// request metadata from ctx, then the fixups every line gets.
func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return fmt.Errorf("logger: writer not initialized")
	}

	fields := h.baseFields(r)
	for _, a := range h.attrs {
		addField(fields, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addField(fields, h.prefix, a)
		return true
	})
	MetaFrom(ctx).fields(fields)

	h.compactRID(fields)
	fillDefault(fields, "event", cmp.Or(r.Message, "unknown"))
	fillDefault(fields, "component", "app")
	normalizeShopFields(fields)
	sanitizeEnumerations(fields)
	pruneEmpty(fields)

	line, err := h.format(fields)
	if err != nil {
		return err
	}
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line = append(line, '\n')
	}
	return h.cfg.writer.Write(r.Level, line)
}

func (h *structuredHandler) baseFields(r slog.Record) map[string]any {
	ts := r.Time.UTC()
	fields := make(map[string]any, 16)
	fields["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	fields["level"] = normalizeLevel(r.Level.String())
	if h.cfg.format == formatJSON {
		fields["ts_unix_nano"] = ts.UnixNano()
	}
	return fields
}

// compactRID shortens the rid; JSON lines keep the original as rid_full.
func (h *structuredHandler) compactRID(fields map[string]any) {
	rid, ok := stringField(fields, "rid")
	if !ok || rid == "" {
		return
	}
	compact := CompactRID(rid)
	if compact == "" || compact == rid {
		return
	}
	if _, seen := fields["rid_full"]; h.cfg.format == formatJSON && !seen {
		fields["rid_full"] = rid
	}
	fields["rid"] = compact
}

func fillDefault(fields map[string]any, key, val string) {
	if cur, ok := stringField(fields, key); !ok || cur == "" {
		fields[key] = val
	}
}

// WithAttrs returns a copy of h that adds attrs to every record.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = slices.Clip(h.attrs)
	for _, a := range attrs {
		walkAttr(h.prefix, a, func(key string, v slog.Value) {
			clone.attrs = append(clone.attrs, slog.Attr{Key: key, Value: v})
		})
	}
	return &clone
}

// WithGroup returns a copy of h whose keys are nested under name.
func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// addField stores attr under prefix. Handler attrs are qualified when they
// are attached, so they are added with an empty prefix.
func addField(fields map[string]any, prefix string, attr slog.Attr) {
	walkAttr(prefix, attr, func(key string, v slog.Value) {
		if key, val, ok := fieldValue(key, v); ok {
			fields[key] = val
		}
	})
}

func (h *structuredHandler) format(fields map[string]any) ([]byte, error) {
	keys := orderedKeys(fields, h.cfg.keyOrder)
	if h.cfg.format == formatJSON {
		return encodeJSON(fields, keys)
	}
	return encodeKV(fields, keys), nil
}

// walkAttr flattens groups into dotted keys. A group with an empty key is
// inlined into its parent.
func walkAttr(prefix string, attr slog.Attr, fn func(string, slog.Value)) {
	key := joinKey(prefix, attr.Key)
	val := attr.Value.Resolve()
	if val.Kind() != slog.KindGroup {
		if key != "" {
			fn(key, val)
		}
		return
	}
	for _, child := range val.Group() {
		walkAttr(key, child, fn)
	}
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

// fieldValue converts v into the value stored for key. Durations are logged
// in milliseconds under a *_ms key; nil values are dropped.
func fieldValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return key, strings.TrimSpace(v.String()), true
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		if u := v.Uint64(); u > math.MaxInt64 {
			return key, u, true
		}
		return key, int64(v.Uint64()), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return durationKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}

	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case decimal.Decimal:
		return key, x.String(), true
	case string:
		return key, strings.TrimSpace(x), true
	case time.Duration:
		return durationKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		return key, x.String(), true
	default:
		return key, fmt.Sprint(x), true
	}
}

// durationKey renames duration attributes so the unit is part of the key.
func durationKey(key string) string {
	switch {
	case key == "duration":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	}
	return key + "_ms"
}

// sanitizeEnumerations maps level, status and outcome onto their fixed
// vocabularies. Unknown statuses pass through; unknown outcomes are dropped.
func sanitizeEnumerations(fields map[string]any) {
	if level, ok := stringField(fields, "level"); ok {
		fields["level"] = normalizeLevel(level)
	}
	if s, ok := stringField(fields, "status"); ok && s != "" {
		if norm, known := normalizeStatus(s); known {
			fields["status"] = norm
		}
	}
	if o, ok := stringField(fields, "outcome"); ok && o != "" {
		norm, known := normalizeOutcome(o)
		if !known {
			delete(fields, "outcome")
			return
		}
		fields["outcome"] = norm
	}
}

func pruneEmpty(fields map[string]any) {
	maps.DeleteFunc(fields, func(_ string, v any) bool {
		switch val := v.(type) {
		case nil:
			return true
		case string:
			return val == ""
		case fmt.Stringer:
			return val.String() == ""
		}
		return false
	})
}

// orderedKeys lists the configured keys present in fields first, then the
// rest alphabetically.
func orderedKeys(fields map[string]any, order []string) []string {
	keys := make([]string, 0, len(fields))
	for _, key := range order {
		if _, ok := fields[key]; ok && !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}
	var rest []string
	for key := range fields {
		if !slices.Contains(keys, key) {
			rest = append(rest, key)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

func encodeJSON(fields map[string]any, keys []string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, key := range keys {
		data, err := json.Marshal(fields[key])
		if err != nil {
			return nil, fmt.Errorf("logger: encode %s: %w", key, err)
		}
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Quote(key))
		b.WriteByte(':')
		b.Write(data)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

func encodeKV(fields map[string]any, keys []string) []byte {
	var b bytes.Buffer
	for i, key := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(kvValue(fields[key]))
	}
	return b.Bytes()
}

func kvValue(val any) string {
	var s string
	switch v := val.(type) {
	case string:
		s = v
	case bool, int, int64, uint64, float64:
		return fmt.Sprint(v)
	default:
		s = fmt.Sprint(v)
	}
	if strings.ContainsFunc(s, needsQuote) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuote(r rune) bool {
	return r <= ' ' || r == '=' || r == '"'
}

func stringField(fields map[string]any, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	if s, isString := v.(string); isString {
		return s, true
	}
	return fmt.Sprint(v), true
}
