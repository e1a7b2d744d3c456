// Package identity derives stable pool keys from untrusted request metadata.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// DefaultKey is the shared key for callers with no identifying metadata.
const DefaultKey = "default_user"

// Key prefixes record which metadata source produced the key.
const (
	PrefixAuth = "auth_"
	PrefixUAIP = "ua_ip_"
	PrefixIP   = "ip_"
)

// hashLength is the number of hex characters kept from the digest. Keys are
// a routing partition, not a security boundary, so a short stable digest is
// enough.
const hashLength = 12

// Resolve derives a pool key from request headers and the source address.
// Priority order, first match wins:
//
//  1. Authorization header present: key from the credential alone.
//  2. User-Agent and source address both present: key from the pair.
//  3. Source address alone: key from the address.
//  4. Otherwise DefaultKey, shared by all unidentified callers.
//
// Resolve is deterministic and has no side effects.
func Resolve(headers map[string]string, sourceAddress string) string {
	if auth := headerValue(headers, "Authorization"); auth != "" {
		return PrefixAuth + shortHash(auth)
	}

	userAgent := headerValue(headers, "User-Agent")
	if userAgent != "" && sourceAddress != "" {
		return PrefixUAIP + shortHash(userAgent+"_"+sourceAddress)
	}

	if sourceAddress != "" {
		return PrefixIP + shortHash(sourceAddress)
	}

	return DefaultKey
}

// headerValue performs a case-insensitive header lookup.
func headerValue(headers map[string]string, name string) string {
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:hashLength]
}
