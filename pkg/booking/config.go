package booking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Well-known configuration keys.
const (
	ConfigKeyMinHours    ConfigKey = "minHours"
	ConfigKeyMaxCapacity ConfigKey = "maxCapacity"
	ConfigKeyTimeSlots   ConfigKey = "timeSlots"

	DefaultMinHours    int64 = 8
	DefaultMaxCapacity int64 = 30
)

// DefaultTimeSlots returns the slots offered when none are configured.
func DefaultTimeSlots() []string {
	return []string{"12:00-13:00", "13:00-14:00", "18:00-19:00", "19:00-20:00"}
}

// ConfigKey names a configuration entry.
type ConfigKey string

// NewConfigKey validates a key. Any non-empty key is accepted.
func NewConfigKey(raw string) (ConfigKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidConfigKey)
	}
	return ConfigKey(trimmed), nil
}

// String returns the key.
func (key ConfigKey) String() string {
	return string(key)
}

// ConfigValueKind tags the variant held by a ConfigValue.
type ConfigValueKind int

const (
	ConfigValueString ConfigValueKind = iota
	ConfigValueInt
	ConfigValueStringList
	ConfigValueJSON
)

// ConfigValue is a decoded configuration value.
type ConfigValue struct {
	kind   ConfigValueKind
	text   string
	number int64
	list   []string
	raw    json.RawMessage
}

// StringValue builds a string value.
func StringValue(value string) ConfigValue {
	return ConfigValue{kind: ConfigValueString, text: value}
}

// IntValue builds an integer value.
func IntValue(value int64) ConfigValue {
	return ConfigValue{kind: ConfigValueInt, number: value}
}

// StringListValue builds an ordered list of strings.
func StringListValue(values []string) ConfigValue {
	return ConfigValue{kind: ConfigValueStringList, list: append([]string{}, values...)}
}

// JSONValue builds a value holding any other JSON document.
func JSONValue(raw json.RawMessage) (ConfigValue, error) {
	if !json.Valid(raw) {
		return ConfigValue{}, fmt.Errorf("%w: not valid json", ErrInvalidConfigValue)
	}
	return classifyJSON(raw), nil
}

// Kind returns the variant tag.
func (value ConfigValue) Kind() ConfigValueKind {
	return value.kind
}

// Str returns the string variant.
func (value ConfigValue) Str() (string, bool) {
	return value.text, value.kind == ConfigValueString
}

// Int returns the integer variant.
func (value ConfigValue) Int() (int64, bool) {
	return value.number, value.kind == ConfigValueInt
}

// StringList returns the list variant.
func (value ConfigValue) StringList() ([]string, bool) {
	if value.kind != ConfigValueStringList {
		return nil, false
	}
	return append([]string{}, value.list...), true
}

// Equal reports whether two values hold the same variant and content.
func (value ConfigValue) Equal(other ConfigValue) bool {
	if value.kind != other.kind {
		return false
	}
	switch value.kind {
	case ConfigValueString:
		return value.text == other.text
	case ConfigValueInt:
		return value.number == other.number
	case ConfigValueStringList:
		if len(value.list) != len(other.list) {
			return false
		}
		for index := range value.list {
			if value.list[index] != other.list[index] {
				return false
			}
		}
		return true
	default:
		return bytes.Equal(compactJSON(value.raw), compactJSON(other.raw))
	}
}

// Encode renders the storage form. Strings are stored verbatim, everything else as JSON.
func (value ConfigValue) Encode() string {
	switch value.kind {
	case ConfigValueString:
		return value.text
	case ConfigValueInt:
		return strconv.FormatInt(value.number, 10)
	case ConfigValueStringList:
		encoded, _ := json.Marshal(value.list)
		return string(encoded)
	default:
		return string(value.raw)
	}
}

// DecodeConfigValue parses a stored value, falling back to the raw string when it is not JSON.
func DecodeConfigValue(stored string) ConfigValue {
	trimmed := strings.TrimSpace(stored)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return StringValue(stored)
	}
	return classifyJSON(json.RawMessage(trimmed))
}

// MarshalJSON renders the natural JSON form of the value.
func (value ConfigValue) MarshalJSON() ([]byte, error) {
	switch value.kind {
	case ConfigValueString:
		return json.Marshal(value.text)
	case ConfigValueInt:
		return json.Marshal(value.number)
	case ConfigValueStringList:
		return json.Marshal(value.list)
	default:
		if len(value.raw) == 0 {
			return []byte("null"), nil
		}
		return value.raw, nil
	}
}

// UnmarshalJSON classifies an incoming JSON document.
func (value *ConfigValue) UnmarshalJSON(data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("%w: not valid json", ErrInvalidConfigValue)
	}
	*value = classifyJSON(append(json.RawMessage(nil), data...))
	return nil
}

func classifyJSON(raw json.RawMessage) ConfigValue {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var decoded any
	if err := decoder.Decode(&decoded); err != nil {
		return ConfigValue{kind: ConfigValueJSON, raw: raw}
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return ConfigValue{kind: ConfigValueJSON, raw: raw}
	}
	switch typed := decoded.(type) {
	case string:
		return StringValue(typed)
	case json.Number:
		if number, err := typed.Int64(); err == nil {
			return IntValue(number)
		}
	case []any:
		list := make([]string, 0, len(typed))
		for _, element := range typed {
			text, ok := element.(string)
			if !ok {
				return ConfigValue{kind: ConfigValueJSON, raw: raw}
			}
			list = append(list, text)
		}
		return StringListValue(list)
	}
	return ConfigValue{kind: ConfigValueJSON, raw: raw}
}

func compactJSON(raw json.RawMessage) []byte {
	var buffer bytes.Buffer
	if err := json.Compact(&buffer, raw); err != nil {
		return raw
	}
	return buffer.Bytes()
}

// normalizeWellKnown decodes a string written under a well-known key the way a stored
// value is read back, so "12" for maxCapacity becomes the integer 12.
func normalizeWellKnown(key ConfigKey, value ConfigValue) ConfigValue {
	switch key {
	case ConfigKeyMinHours, ConfigKeyMaxCapacity, ConfigKeyTimeSlots:
		if text, ok := value.Str(); ok {
			return DecodeConfigValue(text)
		}
	}
	return value
}

// validateWellKnown type-checks values written under the keys the service itself reads.
func validateWellKnown(key ConfigKey, value ConfigValue) error {
	switch key {
	case ConfigKeyMinHours:
		hours, ok := value.Int()
		if !ok || hours < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidConfigValue, key)
		}
	case ConfigKeyMaxCapacity:
		capacity, ok := value.Int()
		if !ok || capacity <= 0 {
			return fmt.Errorf("%w: %s must be a positive integer", ErrInvalidConfigValue, key)
		}
	case ConfigKeyTimeSlots:
		labels, ok := value.StringList()
		if !ok {
			return fmt.Errorf("%w: %s must be a list of slot labels", ErrInvalidConfigValue, key)
		}
		for _, label := range labels {
			if _, err := ParseTimeSlotRange(label); err != nil {
				return err
			}
		}
	}
	return nil
}

// Settings is the typed view of the well-known keys with defaults applied.
type Settings struct {
	MinHours    int64
	MaxCapacity int64
	TimeSlots   []string
}

func settingsFrom(entries map[ConfigKey]string) Settings {
	settings := Settings{
		MinHours:    DefaultMinHours,
		MaxCapacity: DefaultMaxCapacity,
		TimeSlots:   DefaultTimeSlots(),
	}
	if stored, ok := entries[ConfigKeyMinHours]; ok {
		if hours, ok := DecodeConfigValue(stored).Int(); ok && hours >= 0 {
			settings.MinHours = hours
		}
	}
	if stored, ok := entries[ConfigKeyMaxCapacity]; ok {
		settings.MaxCapacity = maxCapacityFrom(stored)
	}
	if stored, ok := entries[ConfigKeyTimeSlots]; ok {
		if labels, ok := DecodeConfigValue(stored).StringList(); ok {
			settings.TimeSlots = labels
		}
	}
	return settings
}

func maxCapacityFrom(stored string) int64 {
	if capacity, ok := DecodeConfigValue(stored).Int(); ok && capacity > 0 {
		return capacity
	}
	return DefaultMaxCapacity
}

func defaultConfigEntries() map[ConfigKey]ConfigValue {
	return map[ConfigKey]ConfigValue{
		ConfigKeyMinHours:    IntValue(DefaultMinHours),
		ConfigKeyMaxCapacity: IntValue(DefaultMaxCapacity),
		ConfigKeyTimeSlots:   StringListValue(DefaultTimeSlots()),
	}
}
