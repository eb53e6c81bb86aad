package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"repo-mcp/internal/crypto"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	defaultKeyFile = ".repo-mcp-key"
	keyEnvVar      = "REPO_MCP_CRYPTO_KEY"
)

type options struct {
	generateKey bool
	keyFile     string
	key         string
	decrypt     bool
	value       string
	interactive bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "encrypt-config",
		Short: "Encrypt or decrypt repo-mcp secrets with AES-256-GCM",
		Long: `Encrypt or decrypt sensitive configuration values such as the GitHub token.

Encrypted values carry the ENC:AES256: prefix and can be placed in the config
file or in GITHUB_TOKEN; repo-mcp decrypts them at startup with the same key.`,
		Example: `  # Generate new encryption key
  encrypt-config --generate-key

  # Encrypt a token (prompted without echo)
  encrypt-config

  # Encrypt from a pipe
  echo "ghp_xxx" | encrypt-config

  # Decrypt a value
  encrypt-config --decrypt --value "ENC:AES256:..."`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.generateKey, "generate-key", false, "Generate a new encryption key (UUID)")
	flags.StringVar(&opts.keyFile, "key-file", defaultKeyFile, "Path to key file (created by --generate-key)")
	flags.StringVar(&opts.key, "key", "", "Encryption key (UUID); defaults to $"+keyEnvVar+" or the key file")
	flags.BoolVar(&opts.decrypt, "decrypt", false, "Decrypt mode (default is encrypt)")
	flags.StringVar(&opts.value, "value", "", "Value to encrypt/decrypt (read from stdin when empty)")
	flags.BoolVar(&opts.interactive, "interactive", false, "Prompt for multiple values")

	return cmd
}

func run(cmd *cobra.Command, opts *options) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	if opts.generateKey {
		return generateAndSaveKey(out, opts.keyFile)
	}

	key := opts.key
	if key == "" {
		var err error
		key, err = getKey(opts.keyFile)
		if err != nil {
			fmt.Fprintln(errOut, "Run with --generate-key to create a new encryption key.")
			return err
		}
	}

	cipher, err := crypto.NewCipher(key)
	if err != nil {
		return err
	}

	if opts.interactive {
		return interactiveMode(cmd.InOrStdin(), out, errOut, cipher, opts.decrypt)
	}

	value := opts.value
	if value == "" {
		value, err = readValue(cmd.InOrStdin(), errOut)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
	}

	result, err := process(cipher, value, opts.decrypt)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, result)
	return nil
}

func process(cipher *crypto.Cipher, value string, decrypt bool) (string, error) {
	if decrypt {
		result, err := cipher.Open(value)
		if err != nil {
			return "", fmt.Errorf("decrypting: %w", err)
		}
		return result, nil
	}
	result, err := cipher.Seal(value)
	if err != nil {
		return "", fmt.Errorf("encrypting: %w", err)
	}
	return result, nil
}

func generateAndSaveKey(out io.Writer, keyFile string) error {
	key := crypto.GenerateKey()

	dir := filepath.Dir(keyFile)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(keyFile, []byte(key), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}

	fmt.Fprintf(out, "✓ Generated new encryption key: %s\n", key)
	fmt.Fprintf(out, "✓ Saved to: %s\n", keyFile)
	fmt.Fprintf(out, "\nIMPORTANT: Keep this key secure!\n")
	fmt.Fprintf(out, "Set environment variable: export %s=%s\n", keyEnvVar, key)
	fmt.Fprintf(out, "Or point repo-mcp at the file with crypto_key_file in the config.\n")
	return nil
}

func getKey(keyFile string) (string, error) {
	if key := os.Getenv(keyEnvVar); key != "" {
		return key, nil
	}
	if _, err := os.Stat(keyFile); err == nil {
		return crypto.LoadKey(keyFile)
	}
	return "", fmt.Errorf("encryption key not found (checked env var %s and file %s)", keyEnvVar, keyFile)
}

// readValue prompts without echo on a terminal and reads all of a pipe otherwise
func readValue(in io.Reader, errOut io.Writer) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(errOut, "Enter value (will be hidden): ")
		data, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(errOut)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	scanner := bufio.NewScanner(in)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return strings.Join(lines, "\n"), nil
}

func interactiveMode(in io.Reader, out, errOut io.Writer, cipher *crypto.Cipher, decrypt bool) error {
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, "Interactive Encryption Mode")
	fmt.Fprintln(out, "---------------------------")
	if decrypt {
		fmt.Fprintln(out, "Mode: DECRYPT")
	} else {
		fmt.Fprintln(out, "Mode: ENCRYPT")
	}
	fmt.Fprintln(out, "Enter values to process (one per line, empty line to exit)")
	fmt.Fprintln(out)

	for {
		if decrypt {
			fmt.Fprint(out, "Encrypted value: ")
		} else {
			fmt.Fprint(out, "Plain value: ")
		}

		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			break
		}

		result, err := process(cipher, line, decrypt)
		if err != nil {
			fmt.Fprintf(errOut, "Error: %v\n", err)
			continue
		}
		if decrypt {
			fmt.Fprintf(out, "Decrypted: %s\n\n", result)
		} else {
			fmt.Fprintf(out, "Encrypted: %s\n\n", result)
		}
	}

	return scanner.Err()
}
