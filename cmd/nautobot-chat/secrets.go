package main

import (
	"bufio"
	"bytes"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/ColtMercer/nautobot-mcp/pkg/config"
)

// passwordEnv lets automated deployments skip the interactive passphrase
// prompt.
const passwordEnv = "NAUTOBOT_MCP_PASSWORD"

// secretPrompts are the credentials "secrets set" collects, in prompt order.
var secretPrompts = []string{
	config.EnvNautobotToken,
	config.EnvMCPAPIKey,
	config.EnvOpenAIKey,
	config.EnvAnthropicKey,
	config.EnvGeminiKey,
}

func runSecretsCommand(args []string) int {
	if len(args) < 1 {
		printSecretsUsage()
		return 1
	}
	switch args[0] {
	case "set":
		return runSecretsSet(args[1:])
	case "list":
		return runSecretsList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown secrets command %q\n\n", args[0])
		printSecretsUsage()
		return 1
	}
}

func printSecretsUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  nautobot-chat secrets set  [-config config.yaml]   encrypt credentials to disk")
	fmt.Fprintln(os.Stderr, "  nautobot-chat secrets list [-config config.yaml]   show stored credential names")
}

// runSecretsSet collects credentials interactively and writes the encrypted
// secrets file. An existing file is decrypted first so untouched entries
// survive the update.
func runSecretsSet(args []string) int {
	flagSet := flag.NewFlagSet("secrets set", flag.ExitOnError)
	configPath := flagSet.String("config", "", "Path to YAML config file")
	if err := flagSet.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	path := cfg.Chat.SecretsPath

	fmt.Println("🔐 Credential Storage")
	fmt.Println()
	fmt.Println("Credentials are encrypted with a passphrase and written to:")
	fmt.Printf("  %s (file permissions: 0600)\n", path)
	fmt.Println()

	secrets := make(map[string]string)
	var password string

	if config.SecretsFileExists(path) {
		password, err = readPassword(fmt.Sprintf("Enter passphrase for %s: ", path))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read passphrase: %v\n", err)
			return 1
		}
		existing, decErr := config.DecryptSecretsFile(path, password)
		if decErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to decrypt existing secrets: %v\n", decErr)
			return 1
		}
		secrets = existing
		fmt.Printf("✅ Decrypted existing file (%d entries). Press Enter to keep a stored value.\n", len(secrets))
	} else {
		password, err = promptForNewPassword()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to get passphrase: %v\n", err)
			return 1
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for _, name := range secretPrompts {
		label := "not set"
		if secrets[name] != "" {
			label = "set"
		}
		fmt.Printf("Enter %s (%s, press Enter to skip): ", name, label)
		if !scanner.Scan() {
			break
		}
		value := strings.TrimSpace(scanner.Text())
		if value != "" {
			secrets[name] = value
		}
	}

	stored := 0
	for _, value := range secrets {
		if value != "" {
			stored++
		}
	}
	if stored == 0 {
		fmt.Println("Nothing to store; no file written.")
		return 0
	}

	fmt.Println()
	fmt.Println("🔐 Encrypting and saving credentials...")
	if err := config.EncryptSecretsFile(path, password, secrets); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encrypt secrets: %v\n", err)
		return 1
	}
	fmt.Printf("✅ %d credential(s) saved to %s\n", stored, path)
	return 0
}

// runSecretsList decrypts the secrets file and prints the stored names.
// Values are never shown.
func runSecretsList(args []string) int {
	flagSet := flag.NewFlagSet("secrets list", flag.ExitOnError)
	configPath := flagSet.String("config", "", "Path to YAML config file")
	if err := flagSet.Parse(args); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	path := cfg.Chat.SecretsPath

	if !config.SecretsFileExists(path) {
		fmt.Printf("No secrets file at %s\n", path)
		return 0
	}

	if err := unlockSecrets(path); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	names := config.SecretNames()
	fmt.Printf("%d credential(s) stored in %s:\n", len(names), path)
	for _, name := range names {
		fmt.Printf("  • %s\n", name)
	}
	return 0
}

// unlockSecrets loads the encrypted secrets file when present. The
// passphrase comes from NAUTOBOT_MCP_PASSWORD or an interactive prompt;
// a missing file means credentials come from the environment.
func unlockSecrets(path string) error {
	if !config.SecretsFileExists(path) {
		return nil
	}

	password := os.Getenv(passwordEnv)
	if password == "" {
		var err error
		password, err = readPassword(fmt.Sprintf("Enter passphrase for %s: ", path))
		if err != nil {
			return fmt.Errorf("failed to read passphrase: %w", err)
		}
	}

	if err := config.LoadSecrets(path, password); err != nil {
		return fmt.Errorf("failed to decrypt %s: %w", path, err)
	}
	fmt.Println("🔐 Secrets unlocked")
	return nil
}

// readPassword reads a passphrase without echo.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(syscall.Stdin)
	fmt.Println() // New line after hidden input
	if err != nil {
		return "", err
	}
	password := string(raw)
	for i := range raw {
		raw[i] = 0
	}
	return password, nil
}

// promptForNewPassword prompts for a fresh passphrase with confirmation.
func promptForNewPassword() (string, error) {
	maxAttempts := 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Print("Enter a passphrase for the secrets file: ")
		password1, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase: %w", err)
		}

		fmt.Print("Confirm passphrase: ")
		password2, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase: %w", err)
		}

		if !bytes.Equal(password1, password2) {
			if attempt < maxAttempts {
				fmt.Println("❌ Passphrases do not match. Please try again.")
				continue
			}
			return "", fmt.Errorf("passphrases do not match after %d attempts", maxAttempts)
		}

		password := string(password1)
		for i := range password1 {
			password1[i] = 0
		}
		for i := range password2 {
			password2[i] = 0
		}

		fmt.Println()
		fmt.Println("⚠️  You'll need this passphrase every time the chat daemon starts.")
		fmt.Printf("💡 Store it in the %s environment variable for passwordless startup.\n", passwordEnv)
		return password, nil
	}

	return "", fmt.Errorf("failed to get matching passphrases")
}
