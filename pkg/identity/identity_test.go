package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePriorityOrder(t *testing.T) {
	tests := []struct {
		name          string
		headers       map[string]string
		sourceAddress string
		wantPrefix    string
	}{
		{
			name: "authorization wins over everything",
			headers: map[string]string{
				"Authorization": "Bearer token-123",
				"User-Agent":    "Mozilla/5.0",
			},
			sourceAddress: "10.0.0.1",
			wantPrefix:    PrefixAuth,
		},
		{
			name: "user agent plus address",
			headers: map[string]string{
				"User-Agent": "Mozilla/5.0",
			},
			sourceAddress: "10.0.0.1",
			wantPrefix:    PrefixUAIP,
		},
		{
			name:          "address alone",
			headers:       map[string]string{},
			sourceAddress: "10.0.0.1",
			wantPrefix:    PrefixIP,
		},
		{
			name: "user agent without address falls through to default",
			headers: map[string]string{
				"User-Agent": "Mozilla/5.0",
			},
			sourceAddress: "",
			wantPrefix:    DefaultKey,
		},
		{
			name:          "nothing at all",
			headers:       nil,
			sourceAddress: "",
			wantPrefix:    DefaultKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := Resolve(tt.headers, tt.sourceAddress)
			assert.True(t, strings.HasPrefix(key, tt.wantPrefix), "key %q should start with %q", key, tt.wantPrefix)
		})
	}
}

func TestResolveDeterministic(t *testing.T) {
	headers := map[string]string{
		"Authorization": "Bearer abc",
		"User-Agent":    "test-agent",
	}

	first := Resolve(headers, "192.168.1.10")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Resolve(headers, "192.168.1.10"))
	}
}

func TestResolveDistinguishesCallers(t *testing.T) {
	a := Resolve(map[string]string{"Authorization": "Bearer one"}, "")
	b := Resolve(map[string]string{"Authorization": "Bearer two"}, "")
	assert.NotEqual(t, a, b)

	c := Resolve(map[string]string{"User-Agent": "ua"}, "10.0.0.1")
	d := Resolve(map[string]string{"User-Agent": "ua"}, "10.0.0.2")
	assert.NotEqual(t, c, d)

	e := Resolve(nil, "10.0.0.1")
	f := Resolve(nil, "10.0.0.2")
	assert.NotEqual(t, e, f)
}

func TestResolveHeaderLookupIsCaseInsensitive(t *testing.T) {
	upper := Resolve(map[string]string{"Authorization": "Bearer tok"}, "")
	lower := Resolve(map[string]string{"authorization": "Bearer tok"}, "")
	assert.Equal(t, upper, lower)

	ua1 := Resolve(map[string]string{"User-Agent": "agent"}, "10.0.0.9")
	ua2 := Resolve(map[string]string{"user-agent": "agent"}, "10.0.0.9")
	assert.Equal(t, ua1, ua2)
}

func TestResolveKeyShape(t *testing.T) {
	key := Resolve(map[string]string{"Authorization": "Bearer tok"}, "")
	assert.Len(t, key, len(PrefixAuth)+hashLength)

	// Same credential never leaks into the key itself.
	assert.NotContains(t, key, "tok")
}

func TestResolveUnidentifiedCallersShareOneKey(t *testing.T) {
	assert.Equal(t, DefaultKey, Resolve(nil, ""))
	assert.Equal(t, DefaultKey, Resolve(map[string]string{"Accept": "text/html"}, ""))
}
