package auth

import (
	"strings"
	"testing"
)

func TestGenerateAdminKey(t *testing.T) {
	t.Parallel()

	key, err := GenerateAdminKey()
	if err != nil {
		t.Fatalf("GenerateAdminKey failed: %v", err)
	}

	// Check plaintext format
	if !strings.HasPrefix(key.Plaintext, "vk_") {
		t.Errorf("Key should start with vk_, got: %s", key.Plaintext)
	}
	if !ValidateKeyFormat(key.Plaintext) {
		t.Errorf("Generated key should validate, got: %s", key.Plaintext)
	}

	// Check prefix length
	if len(key.Prefix) != KeyPrefixLen {
		t.Errorf("Prefix should be %d chars, got: %d", KeyPrefixLen, len(key.Prefix))
	}

	// Check hash is not empty and in PHC format
	if key.Hash == "" {
		t.Error("Hash should not be empty")
	}
	if !strings.HasPrefix(key.Hash, "$argon2id$v=") {
		t.Errorf("Hash should be in PHC format, got: %s", key.Hash)
	}

	// Verify plaintext contains prefix
	if !strings.Contains(key.Plaintext, key.Prefix) {
		t.Error("Plaintext should contain prefix")
	}

	// Hash must verify against the plaintext
	match, err := VerifyKey(key.Plaintext, key.Hash)
	if err != nil {
		t.Fatalf("VerifyKey failed: %v", err)
	}
	if !match {
		t.Error("Generated hash should verify against the plaintext key")
	}
}

func TestGenerateAdminKey_UniqueSecrets(t *testing.T) {
	t.Parallel()

	const numKeys = 100
	secrets := make(map[string]bool, numKeys)

	for i := 0; i < numKeys; i++ {
		key, err := GenerateAdminKey()
		if err != nil {
			t.Fatalf("GenerateAdminKey failed: %v", err)
		}

		// Extract secret from plaintext (32 chars after final underscore)
		parts := strings.Split(key.Plaintext, "_")
		if len(parts) != 3 {
			t.Fatalf("Expected 3 parts in key, got %d", len(parts))
		}
		secret := parts[2]

		if secrets[secret] {
			t.Errorf("Duplicate secret found at iteration %d", i)
		}
		secrets[secret] = true
	}

	if len(secrets) != numKeys {
		t.Errorf("Expected %d unique secrets, got %d", numKeys, len(secrets))
	}
}

func TestValidateKeyFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"valid key", "vk_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", true},
		{"not a key", "not-a-key", false},
		{"wrong prefix", "pk_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", false},
		{"short prefix", "vk_abc_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b", false},
		{"short secret", "vk_abc123_4f8d2e1b", false},
		{"long secret", "vk_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1bx", false},
		{"empty", "", false},
		{"uppercase hex", "vk_ABC123_4F8D2E1B9C7A5F3D2E1B9C7A5F3D2E1B", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ValidateKeyFormat(tt.key)
			if got != tt.want {
				t.Errorf("ValidateKeyFormat(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}
