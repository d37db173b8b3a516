// Package main is a development utility for generating a KeyNest master
// encryption key. It prints a fresh 32-byte key in both the base64 and raw
// forms accepted by the ENCRYPTION_KEY environment variable. Generate one key
// per deployment and store it in your secret manager — losing the key makes
// every sealed value unrecoverable.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
)

func main() {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Fatal(err)
	}

	encoded := base64.StdEncoding.EncodeToString(key)

	fmt.Println("==========================================================")
	fmt.Println("Master Encryption Key Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nENCRYPTION_KEY=%s\n", encoded)
	fmt.Println("\nThe value is base64-encoded; the server decodes it to the")
	fmt.Println("32 raw bytes used for AES-256-GCM.")
	fmt.Println("\nStore this in your secret manager. Rotating it requires")
	fmt.Println("re-encrypting every stored value with the new key.")
	fmt.Println("==========================================================")
}
