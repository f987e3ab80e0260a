package engine

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// ValueSigner produces opaque, expiring, HMAC-signed renditions of a value.
// The key is generated per process, so tokens don't survive a restart. That
// suits short-lived values like undo tickets and check-in tokens.
type ValueSigner[T any] struct {
	key []byte
}

func NewValueSigner[T any]() *ValueSigner[T] {
	v := &ValueSigner[T]{}
	v.initSigningKey()
	return v
}

func (v *ValueSigner[T]) initSigningKey() {
	v.key = make([]byte, 32)
	if _, err := rand.Read(v.key); err != nil {
		panic(err)
	}
}

// Sign encodes the value alongside its expiration and appends a signature.
func (v *ValueSigner[T]) Sign(val T, ttl time.Duration) string {
	js, err := json.Marshal(&signedValue[T]{Value: val, Exp: time.Now().Add(ttl).Unix()})
	if err != nil {
		panic(err)
	}
	h := hmac.New(sha256.New, v.key)
	h.Write(js)
	return fmt.Sprintf("%s.%s", js, base64.StdEncoding.EncodeToString(h.Sum(nil)))
}

// Verify checks the signature and expiration, returning the signed value only
// when both hold. The signature follows the last dot so the payload itself
// may contain dots.
func (v *ValueSigner[T]) Verify(str string) (val T, valid bool) {
	i := strings.LastIndex(str, ".")
	if i < 0 {
		return
	}
	payload, encodedSig := str[:i], str[i+1:]

	sig, _ := base64.StdEncoding.DecodeString(encodedSig)
	h := hmac.New(sha256.New, v.key)
	io.WriteString(h, payload)
	if !hmac.Equal(sig, h.Sum(nil)) {
		return
	}

	sv := &signedValue[T]{}
	err := json.Unmarshal([]byte(payload), sv)
	if err != nil {
		return
	}
	if time.Now().Unix() > sv.Exp {
		return
	}
	return sv.Value, true
}

type signedValue[T any] struct {
	Value T     `json:"v"`
	Exp   int64 `json:"e"`
}
