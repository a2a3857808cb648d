package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/viewtally/viewtally/internal/auth"
)

type output struct {
	Key       string `json:"key"`
	KeyPrefix string `json:"key_prefix"`
	KeyHash   string `json:"key_hash"`
}

// Generates an admin API key and the argon2id hash to deploy as
// ADMIN_KEY_HASH. The plaintext key is shown once and never stored.
func main() {
	format := flag.String("format", "plain", "Output format: plain or json")
	flag.Parse()

	generated, err := auth.GenerateAdminKey()
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate admin key:", err)
		os.Exit(1)
	}

	out := output{
		Key:       generated.Plaintext,
		KeyPrefix: generated.Prefix,
		KeyHash:   generated.Hash,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println("key:      ", out.Key)
		fmt.Println("prefix:   ", out.KeyPrefix)
		fmt.Println("key hash: ", out.KeyHash)
		fmt.Println()
		fmt.Println("export ADMIN_KEY_HASH='" + out.KeyHash + "'")
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}
