package booking

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestSetConfigRoundTrip(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name  string
		key   string
		value ConfigValue
	}{
		{name: "string", key: "restaurantName", value: StringValue("Maná Coffee")},
		{name: "integer", key: "maxCapacity", value: IntValue(42)},
		{name: "string list", key: "timeSlots", value: StringListValue([]string{"12:00-13:00", "19:00-20:00"})},
		{name: "nested json", key: "theme", value: mustJSONValue(test, `{"primary":"#aa3300","dark":true}`)},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			service := mustNewService(test, store)
			key := mustConfigKey(test, testCase.key)
			if err := service.SetConfig(context.Background(), key, testCase.value); err != nil {
				test.Fatalf("set config: %v", err)
			}
			got, err := service.Config(context.Background(), key)
			if err != nil {
				test.Fatalf("get config: %v", err)
			}
			if !got.Equal(testCase.value) {
				test.Fatalf("expected %s, got %s", mustMarshal(test, testCase.value), mustMarshal(test, got))
			}
		})
	}
}

func TestTimeSlotsReadBackAsOrderedList(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	store.config[ConfigKeyTimeSlots] = `["12:00-13:00"]`

	if err := service.SetConfig(context.Background(), ConfigKeyTimeSlots, StringListValue([]string{"12:00-13:00", "19:00-20:00"})); err != nil {
		test.Fatalf("set timeSlots: %v", err)
	}
	value, err := service.Config(context.Background(), ConfigKeyTimeSlots)
	if err != nil {
		test.Fatalf("get timeSlots: %v", err)
	}
	labels, ok := value.StringList()
	if !ok {
		test.Fatalf("expected a list, got kind %d", value.Kind())
	}
	if len(labels) != 2 || labels[0] != "12:00-13:00" || labels[1] != "19:00-20:00" {
		test.Fatalf("unexpected labels: %v", labels)
	}
}

func TestConfigStoresStringsVerbatim(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	key := mustConfigKey(test, "welcome")

	if err := service.SetConfig(context.Background(), key, StringValue("Bienvenidos")); err != nil {
		test.Fatalf("set: %v", err)
	}
	if store.config[key] != "Bienvenidos" {
		test.Fatalf("expected raw string storage, got %q", store.config[key])
	}
}

func TestConfigMissingKey(test *testing.T) {
	test.Parallel()
	service := mustNewService(test, newStubStore(test))
	_, err := service.Config(context.Background(), mustConfigKey(test, "absent"))
	if !errors.Is(err, ErrConfigNotFound) {
		test.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestSetConfigValidatesWellKnownKeys(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name  string
		key   ConfigKey
		value ConfigValue
	}{
		{name: "negative minHours", key: ConfigKeyMinHours, value: IntValue(-1)},
		{name: "string minHours", key: ConfigKeyMinHours, value: StringValue("eight")},
		{name: "zero maxCapacity", key: ConfigKeyMaxCapacity, value: IntValue(0)},
		{name: "zero maxCapacity as string", key: ConfigKeyMaxCapacity, value: StringValue("0")},
		{name: "negative minHours as string", key: ConfigKeyMinHours, value: StringValue("-3")},
		{name: "fractional maxCapacity as string", key: ConfigKeyMaxCapacity, value: StringValue("12.5")},
		{name: "word maxCapacity", key: ConfigKeyMaxCapacity, value: StringValue("lots")},
		{name: "list maxCapacity", key: ConfigKeyMaxCapacity, value: StringListValue([]string{"30"})},
		{name: "timeSlots as string", key: ConfigKeyTimeSlots, value: StringValue("12:00-13:00")},
		{name: "reversed slot", key: ConfigKeyTimeSlots, value: StringListValue([]string{"13:00-12:00"})},
		{name: "malformed slot", key: ConfigKeyTimeSlots, value: StringListValue([]string{"noon"})},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			service := mustNewService(test, store)
			err := service.SetConfig(context.Background(), testCase.key, testCase.value)
			if !errors.Is(err, ErrValidation) {
				test.Fatalf("expected validation error, got %v", err)
			}
			if store.configUpserts != 0 {
				test.Fatalf("invalid value must not be stored")
			}
		})
	}
}

func TestSetConfigAcceptsNumericStringsForWellKnownKeys(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		key      ConfigKey
		value    ConfigValue
		stored   string
		expected ConfigValue
	}{
		{name: "maxCapacity from form input", key: ConfigKeyMaxCapacity, value: StringValue("12"), stored: "12", expected: IntValue(12)},
		{name: "minHours from form input", key: ConfigKeyMinHours, value: StringValue("0"), stored: "0", expected: IntValue(0)},
		{name: "padded minHours", key: ConfigKeyMinHours, value: StringValue(" 24 "), stored: "24", expected: IntValue(24)},
		{name: "timeSlots as encoded list", key: ConfigKeyTimeSlots, value: StringValue(`["12:00-13:00"]`), stored: `["12:00-13:00"]`, expected: StringListValue([]string{"12:00-13:00"})},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			store := newStubStore(test)
			service := mustNewService(test, store)
			if err := service.SetConfig(context.Background(), testCase.key, testCase.value); err != nil {
				test.Fatalf("set config: %v", err)
			}
			if store.config[testCase.key] != testCase.stored {
				test.Fatalf("expected stored %q, got %q", testCase.stored, store.config[testCase.key])
			}
			got, err := service.Config(context.Background(), testCase.key)
			if err != nil {
				test.Fatalf("get config: %v", err)
			}
			if !got.Equal(testCase.expected) {
				test.Fatalf("expected %s, got %s", mustMarshal(test, testCase.expected), mustMarshal(test, got))
			}
		})
	}
}

func TestDecodeConfigValue(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name     string
		stored   string
		expected ConfigValue
	}{
		{name: "integer", stored: "8", expected: IntValue(8)},
		{name: "json string", stored: `"hola"`, expected: StringValue("hola")},
		{name: "raw string", stored: "hola mundo", expected: StringValue("hola mundo")},
		{name: "broken json", stored: `["12:00-13:00"`, expected: StringValue(`["12:00-13:00"`)},
		{name: "list", stored: `["a","b"]`, expected: StringListValue([]string{"a", "b"})},
		{name: "mixed list", stored: `["a",1]`, expected: mustJSONValue(test, `["a",1]`)},
		{name: "float", stored: "1.5", expected: mustJSONValue(test, "1.5")},
		{name: "empty", stored: "", expected: StringValue("")},
	}
	for _, testCase := range testCases {
		got := DecodeConfigValue(testCase.stored)
		if !got.Equal(testCase.expected) {
			test.Fatalf("%s: expected %s, got %s", testCase.name, mustMarshal(test, testCase.expected), mustMarshal(test, got))
		}
	}
}

func TestConfigValueUnmarshalJSON(test *testing.T) {
	test.Parallel()
	var value ConfigValue
	if err := json.Unmarshal([]byte(`["12:00-13:00","13:00-14:00"]`), &value); err != nil {
		test.Fatalf("unmarshal: %v", err)
	}
	if value.Kind() != ConfigValueStringList {
		test.Fatalf("expected list kind, got %d", value.Kind())
	}
	if value.Encode() != `["12:00-13:00","13:00-14:00"]` {
		test.Fatalf("unexpected encoding: %s", value.Encode())
	}
}

func TestSettingsFallBackToDefaults(test *testing.T) {
	test.Parallel()
	store := newStubStore(test)
	service := mustNewService(test, store)
	store.config[ConfigKeyMaxCapacity] = "not a number"

	settings, err := service.Settings(context.Background())
	if err != nil {
		test.Fatalf("settings: %v", err)
	}
	if settings.MaxCapacity != DefaultMaxCapacity || settings.MinHours != DefaultMinHours || len(settings.TimeSlots) != 4 {
		test.Fatalf("unexpected settings: %+v", settings)
	}
}

func TestSetConfigPropagatesStorageFailure(test *testing.T) {
	test.Parallel()
	storageErr := errors.New("read-only file system")
	service := mustNewService(test, newFailingStore(test, storageErr))
	err := service.SetConfig(context.Background(), mustConfigKey(test, "welcome"), StringValue("hola"))
	if !errors.Is(err, storageErr) {
		test.Fatalf("expected storage error, got %v", err)
	}
}

func mustConfigKey(test *testing.T, raw string) ConfigKey {
	test.Helper()
	key, err := NewConfigKey(raw)
	if err != nil {
		test.Fatalf("config key %q: %v", raw, err)
	}
	return key
}

func mustJSONValue(test *testing.T, raw string) ConfigValue {
	test.Helper()
	value, err := JSONValue(json.RawMessage(raw))
	if err != nil {
		test.Fatalf("json value %s: %v", raw, err)
	}
	return value
}

func mustMarshal(test *testing.T, value ConfigValue) string {
	test.Helper()
	encoded, err := json.Marshal(value)
	if err != nil {
		test.Fatalf("marshal: %v", err)
	}
	return string(encoded)
}
