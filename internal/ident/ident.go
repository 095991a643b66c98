// Package ident generates and validates the opaque identifiers raido
// hands out: 24-hex-character entity ids and UUID share tokens.
package ident

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

const rawLen = 12 // bytes of entropy per id; 24 hex characters encoded

// New returns a fresh 24-character hex id.
func New() string {
	b := make([]byte, rawLen)
	if _, err := rand.Read(b); err != nil {
		panic("ident: system random source unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// Valid reports whether s is a well-formed entity id. Ids are opaque to
// every layer above the store; this is a shape check only.
func Valid(s string) bool {
	if len(s) != rawLen*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// NewShareToken returns an unguessable token for public trip links.
func NewShareToken() string {
	return uuid.NewString()
}

// ValidShareToken reports whether s has the shape of a share token.
func ValidShareToken(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
