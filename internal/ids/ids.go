// Package ids generates short random identifiers.
package ids

import (
	"fmt"

	"github.com/aidarkhanov/nanoid/v2"
)

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	ItemLen   = 8
	TokenLen  = 16
	ObjectLen = 10
)

func New(n int) (string, error) {
	id, err := nanoid.GenerateString(alphabet, n)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}
