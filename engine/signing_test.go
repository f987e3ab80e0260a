package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValueSignerRoundtrip(t *testing.T) {
	s := NewValueSigner[int64]()

	signed := s.Sign(123, time.Minute)
	val, valid := s.Verify(signed)
	assert.True(t, valid)
	assert.Equal(t, int64(123), val)
}

func TestValueSignerExpired(t *testing.T) {
	s := NewValueSigner[int64]()

	signed := s.Sign(123, -time.Minute)
	_, valid := s.Verify(signed)
	assert.False(t, valid)
}

func TestValueSignerDottedValue(t *testing.T) {
	s := NewValueSigner[string]()

	signed := s.Sign("v1.2.3", time.Minute)
	val, valid := s.Verify(signed)
	assert.True(t, valid)
	assert.Equal(t, "v1.2.3", val)
}

func TestValueSignerTampered(t *testing.T) {
	s := NewValueSigner[string]()

	signed := s.Sign("hello", time.Minute)
	_, valid := s.Verify("x" + signed)
	assert.False(t, valid)

	_, valid = s.Verify("garbage")
	assert.False(t, valid)
}

func TestValueSignerWrongKey(t *testing.T) {
	a := NewValueSigner[string]()
	b := NewValueSigner[string]()

	signed := a.Sign("hello", time.Minute)
	_, valid := b.Verify(signed)
	assert.False(t, valid)
}
