package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsBlockedKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/invoices/:id/pay"),
		attribute.String("payment_reference", "pi_123"),
		attribute.String("long", strings.Repeat("a", maxAttributeLength+5)),
	)
	if assert.Len(t, attrs, 2) {
		assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
		assert.Len(t, attrs[1].Value.AsString(), maxAttributeLength)
	}
}

func TestSafeError(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	err := SafeError(errors.New("db failed\ndetail: secret"))
	assert.EqualError(t, err, "db failed")
}
