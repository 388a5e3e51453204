package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSecretsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json.enc")
	in := map[string]string{
		"OPENAI_API_KEY": "sk-test-123",
		"NAUTOBOT_TOKEN": "0123456789abcdef",
	}

	if err := EncryptSecretsFile(path, "correct horse", in); err != nil {
		t.Fatalf("EncryptSecretsFile failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("secrets file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 permissions, got %04o", info.Mode().Perm())
	}

	out, err := DecryptSecretsFile(path, "correct horse")
	if err != nil {
		t.Fatalf("DecryptSecretsFile failed: %v", err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch: %v != %v", out, in)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json.enc")
	if err := EncryptSecretsFile(path, "right", map[string]string{"A": "b"}); err != nil {
		t.Fatalf("EncryptSecretsFile failed: %v", err)
	}

	if _, err := DecryptSecretsFile(path, "wrong"); err == nil {
		t.Fatal("expected decryption failure with wrong password")
	}
}

func TestDecryptCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json.enc")
	if err := os.WriteFile(path, []byte("too short"), 0600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := DecryptSecretsFile(path, "any"); err == nil {
		t.Fatal("expected error for truncated file")
	}
}

func TestDecryptFixesLoosePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json.enc")
	if err := EncryptSecretsFile(path, "pw", map[string]string{"A": "b"}); err != nil {
		t.Fatalf("EncryptSecretsFile failed: %v", err)
	}
	if err := os.Chmod(path, 0644); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}

	if _, err := DecryptSecretsFile(path, "pw"); err != nil {
		t.Fatalf("DecryptSecretsFile failed: %v", err)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected permissions tightened to 0600, got %04o", info.Mode().Perm())
	}
}

func TestLoadSecretsAndGetSecret(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json.enc")
	if err := EncryptSecretsFile(path, "pw", map[string]string{"OPENAI_API_KEY": "from-file"}); err != nil {
		t.Fatalf("EncryptSecretsFile failed: %v", err)
	}

	if err := LoadSecrets(path, "pw"); err != nil {
		t.Fatalf("LoadSecrets failed: %v", err)
	}
	t.Cleanup(func() { SetDecryptedSecrets(nil) })

	// The file value wins over the environment.
	t.Setenv("OPENAI_API_KEY", "from-env")
	value, err := GetSecret("OPENAI_API_KEY")
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if value != "from-file" {
		t.Errorf("expected file value to win, got %q", value)
	}

	// Names absent from the file fall back to the environment.
	t.Setenv("NAUTOBOT_TOKEN", "env-only")
	value, err = GetSecret("NAUTOBOT_TOKEN")
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if value != "env-only" {
		t.Errorf("expected env fallback, got %q", value)
	}

	if _, err := GetSecret("NO_SUCH_SECRET"); err == nil {
		t.Error("expected error for unknown secret")
	}
}

func TestSecretNames(t *testing.T) {
	SetDecryptedSecrets(map[string]string{"B_KEY": "2", "A_KEY": "1"})
	t.Cleanup(func() { SetDecryptedSecrets(nil) })

	names := SecretNames()
	if !reflect.DeepEqual(names, []string{"A_KEY", "B_KEY"}) {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestSecretsFileExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json.enc")
	if SecretsFileExists(path) {
		t.Error("expected false for missing file")
	}
	if err := EncryptSecretsFile(path, "pw", map[string]string{}); err != nil {
		t.Fatalf("EncryptSecretsFile failed: %v", err)
	}
	if !SecretsFileExists(path) {
		t.Error("expected true after writing")
	}
}
