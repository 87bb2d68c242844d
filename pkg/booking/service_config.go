package booking

import "context"

// Config returns the decoded value stored under key, or ErrConfigNotFound.
func (service *Service) Config(ctx context.Context, key ConfigKey) (ConfigValue, error) {
	stored, err := service.store.GetConfigEntry(ctx, key)
	if err != nil {
		return ConfigValue{}, err
	}
	return DecodeConfigValue(stored), nil
}

// AllConfig returns every stored entry decoded.
func (service *Service) AllConfig(ctx context.Context) (map[ConfigKey]ConfigValue, error) {
	entries, err := service.store.ListConfigEntries(ctx)
	if err != nil {
		return nil, err
	}
	decoded := make(map[ConfigKey]ConfigValue, len(entries))
	for key, stored := range entries {
		decoded[key] = DecodeConfigValue(stored)
	}
	return decoded, nil
}

// Settings returns the typed well-known settings with defaults for absent or unparseable values.
func (service *Service) Settings(ctx context.Context) (Settings, error) {
	entries, err := service.store.ListConfigEntries(ctx)
	if err != nil {
		return Settings{}, err
	}
	return settingsFrom(entries), nil
}

// SetConfig upserts a configuration entry.
func (service *Service) SetConfig(ctx context.Context, key ConfigKey, value ConfigValue) error {
	value = normalizeWellKnown(key, value)
	operationError := validateWellKnown(key, value)
	if operationError == nil {
		operationError = service.store.UpsertConfigEntry(ctx, key, value.Encode())
	}
	service.logOperation(ctx, OperationLog{
		Operation: operationSetConfig,
		ConfigKey: key,
		Error:     operationError,
	})
	return operationError
}
