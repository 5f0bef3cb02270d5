package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

// Attribute keys that may carry tenant contact data and must never reach a span.
var forbiddenAttributeKeys = map[attribute.Key]struct{}{
	"tenant.name":   {},
	"tenant.phone":  {},
	"tenant.email":  {},
	"api_key":       {},
	"authorization": {},
}

// SafeAttributes drops attributes whose keys are on the deny list.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, denied := forbiddenAttributeKeys[attr.Key]; denied {
			continue
		}
		out = append(out, attr)
	}
	return out
}

// SafeError reduces err to its message so wrapped values are not serialized.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(err.Error())
}

// ExtractContext pulls the remote span context from carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
