// Command adminkey generates an admin API key and the hash to put in
// APP_ADMIN_API_KEY_HASH.
package main

import (
	"fmt"
	"os"

	"gallerybot/internal/auth"
)

func main() {
	key, err := auth.NewAPIKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("key:  %s\n", key)
	// Single quotes keep .env loaders from expanding the $ fields.
	fmt.Printf("APP_ADMIN_API_KEY_HASH='%s'\n", hash)
}
