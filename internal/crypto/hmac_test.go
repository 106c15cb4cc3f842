package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeadersAtDeterministic(t *testing.T) {
	auth := &HMACAuth{
		Address:    "0xabc",
		Key:        "key-1",
		Secret:     base64.StdEncoding.EncodeToString([]byte("topsecret")),
		Passphrase: "pass",
	}

	h1 := auth.HeadersAt("POST", "/order", `{"market":"m1"}`, 1700000000)
	h2 := auth.HeadersAt("POST", "/order", `{"market":"m1"}`, 1700000000)

	require.Equal(t, h1, h2)
	assert.Equal(t, "0xabc", h1["POLY_ADDRESS"])
	assert.Equal(t, "key-1", h1["POLY_API_KEY"])
	assert.Equal(t, "1700000000", h1["POLY_TIMESTAMP"])
	assert.Equal(t, "pass", h1["POLY_PASSPHRASE"])
	assert.NotEmpty(t, h1["POLY_SIGNATURE"])
}

func TestHeadersAtSignatureCoversRequest(t *testing.T) {
	auth := &HMACAuth{Key: "k", Secret: base64.StdEncoding.EncodeToString([]byte("s")), Passphrase: "p"}

	base := auth.HeadersAt("POST", "/order", "body", 1700000000)
	differentPath := auth.HeadersAt("POST", "/other", "body", 1700000000)
	differentBody := auth.HeadersAt("POST", "/order", "body2", 1700000000)
	differentTime := auth.HeadersAt("POST", "/order", "body", 1700000001)

	assert.NotEqual(t, base["POLY_SIGNATURE"], differentPath["POLY_SIGNATURE"])
	assert.NotEqual(t, base["POLY_SIGNATURE"], differentBody["POLY_SIGNATURE"])
	assert.NotEqual(t, base["POLY_SIGNATURE"], differentTime["POLY_SIGNATURE"])
}

func TestHeadersAtRawSecretFallback(t *testing.T) {
	// A secret that is not valid base64 must still produce a signature.
	auth := &HMACAuth{Key: "k", Secret: "not-base64!!!", Passphrase: "p"}
	h := auth.HeadersAt("GET", "/data/trades", "", 1700000000)
	assert.NotEmpty(t, h["POLY_SIGNATURE"])
}
