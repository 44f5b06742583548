package processor

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// decode copies a task payload into dst. Payloads usually arrive as decoded
// JSON objects, so durations may be strings like "250ms" and numbers may be
// float64.
func decode(payload any, dst any) error {
	if payload == nil {
		return nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(" "),
		),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		TagName:          "json",
		Result:           dst,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
