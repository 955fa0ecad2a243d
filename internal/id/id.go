// Package id generates opaque identifiers for transient protocol
// objects (overlay client ids, agent RPC request ids).
// Monotonic per-process sequence ids for FeedItem/SenseEvent are owned
// by their respective rings, not by this package.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Generate returns a 32-character nanoid using an alphanumeric alphabet.
func Generate() string {
	v, err := gonanoid.Generate(alphabet, 32)
	if err != nil {
		panic(fmt.Sprintf("id: generate nanoid: %v", err))
	}
	return v
}

// Short returns a 12-character nanoid, used where a full 32-char id
// would be needlessly long (e.g. overlay client ids in log lines).
func Short() string {
	v, err := gonanoid.Generate(alphabet, 12)
	if err != nil {
		panic(fmt.Sprintf("id: generate nanoid: %v", err))
	}
	return v
}
