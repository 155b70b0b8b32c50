package toolhttp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	sig := Sign([]byte(`{"a":1}`), "secret")
	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)
	assert.Equal(t, sig, Sign([]byte(`{"a":1}`), "secret"))
	assert.NotEqual(t, sig, Sign([]byte(`{"a":2}`), "secret"))
	assert.NotEqual(t, sig, Sign([]byte(`{"a":1}`), "other"))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"toolCall":{"id":"1","toolName":"echo"}}`)
	secret := "s3cret"

	tests := []struct {
		name      string
		signature string
		want      bool
	}{
		{name: "valid", signature: Sign(body, secret), want: true},
		{name: "wrong secret", signature: Sign(body, "nope"), want: false},
		{name: "missing prefix", signature: Sign(body, secret)[len("sha256="):], want: false},
		{name: "empty", signature: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, verifySignature(body, tt.signature, secret))
		})
	}
}
