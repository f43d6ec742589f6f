package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zanatools/zana/internal/credentials"
	"github.com/zanatools/zana/internal/vault"
)

// verifyTimeout bounds the provider health-check probe.
const verifyTimeout = 10 * time.Second

var (
	saveUsername string
	savePassword string
	saveMeta     []string
	setKeyValue  string
)

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage vault credentials",
	Long: `Manage website login credentials and LLM provider API keys in the
encrypted vault. Secret values are written to the vault and nowhere else;
show never prints a password.`,
}

var credentialSaveCmd = &cobra.Command{
	Use:   "save <ref>",
	Short: "Store a website login credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialSave,
}

var credentialListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored credential references",
	Args:  cobra.NoArgs,
	RunE:  runCredentialList,
}

var credentialShowCmd = &cobra.Command{
	Use:   "show <ref>",
	Short: "Show a credential's username and field names",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialShow,
}

var credentialDeleteCmd = &cobra.Command{
	Use:   "delete <ref>",
	Short: "Delete a stored credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialDelete,
}

var credentialSetKeyCmd = &cobra.Command{
	Use:   "set-key <provider>",
	Short: "Store an LLM provider API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialSetKey,
}

var credentialVerifyCmd = &cobra.Command{
	Use:   "verify <provider>",
	Short: "Verify a provider API key against its health endpoint",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredentialVerify,
}

func init() {
	credentialSaveCmd.Flags().StringVarP(&saveUsername, "username", "u", "", "login username (required)")
	credentialSaveCmd.Flags().StringVarP(&savePassword, "password", "p", "", "login password (prompted when omitted)")
	credentialSaveCmd.Flags().StringArrayVar(&saveMeta, "meta", nil, "extra metadata field as key=value (repeatable)")
	_ = credentialSaveCmd.MarkFlagRequired("username")

	credentialSetKeyCmd.Flags().StringVar(&setKeyValue, "key", "", "API key value (prompted when omitted)")

	credentialCmd.AddCommand(
		credentialSaveCmd,
		credentialListCmd,
		credentialShowCmd,
		credentialDeleteCmd,
		credentialSetKeyCmd,
		credentialVerifyCmd,
	)
}

// openCredentialStore opens the vault for one-shot credential commands.
// No observability wiring: these commands run and exit.
func openCredentialStore() (vault.Store, *vault.AuthStore, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg.Log)

	store, vaultDir, err := openVault(cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return store, vault.NewAuthStore(store, vaultDir, logger), logger, nil
}

func runCredentialSave(_ *cobra.Command, args []string) error {
	ref := args[0]

	metadata := make(map[string]string, len(saveMeta))
	for _, entry := range saveMeta {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return fmt.Errorf("invalid --meta entry %q (expected key=value)", entry)
		}
		metadata[parts[0]] = parts[1]
	}

	password := savePassword
	if password == "" {
		var err error
		if password, err = promptLine("Password"); err != nil {
			return err
		}
	}
	if password == "" {
		return errors.New("password is required")
	}

	_, auth, _, err := openCredentialStore()
	if err != nil {
		return err
	}

	if err := auth.SaveAuthCredential(context.Background(), ref, saveUsername, password, metadata); err != nil {
		return err
	}
	fmt.Printf("Credential %q saved.\n", ref)
	return nil
}

func runCredentialList(_ *cobra.Command, _ []string) error {
	_, auth, _, err := openCredentialStore()
	if err != nil {
		return err
	}

	refs, err := auth.ListAuthCredentials(context.Background())
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		fmt.Println("No credentials stored.")
		return nil
	}
	for _, ref := range refs {
		fmt.Println(ref)
	}
	return nil
}

func runCredentialShow(_ *cobra.Command, args []string) error {
	ref := args[0]

	_, auth, _, err := openCredentialStore()
	if err != nil {
		return err
	}

	fields, err := auth.GetAuthCredential(context.Background(), ref)
	if err != nil {
		if errors.Is(err, vault.ErrNotFound) {
			return fmt.Errorf("credential %q not found", ref)
		}
		return err
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	// Field names only; the password value stays in the vault.
	fmt.Printf("ref:      %s\n", ref)
	fmt.Printf("username: %s\n", fields["username"])
	fmt.Printf("fields:   %s\n", strings.Join(names, ", "))
	return nil
}

func runCredentialDelete(_ *cobra.Command, args []string) error {
	ref := args[0]

	_, auth, _, err := openCredentialStore()
	if err != nil {
		return err
	}

	deleted, err := auth.DeleteAuthCredential(context.Background(), ref)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("credential %q not found", ref)
	}
	fmt.Printf("Credential %q deleted.\n", ref)
	return nil
}

func runCredentialSetKey(_ *cobra.Command, args []string) error {
	provider := credentials.Normalize(args[0])
	spec, ok := credentials.Spec(provider)
	if !ok {
		return fmt.Errorf("unknown provider %q (known providers: %s)",
			args[0], strings.Join(credentials.Providers(), ", "))
	}

	key := setKeyValue
	if key == "" {
		fmt.Fprintln(os.Stderr, spec.KeyInstructions)
		fmt.Fprintln(os.Stderr)
		var err error
		if key, err = promptLine("API key"); err != nil {
			return err
		}
	}
	if key == "" {
		return errors.New("api key is required")
	}

	store, _, _, err := openCredentialStore()
	if err != nil {
		return err
	}

	credential := vault.NewCredential(provider, map[string]string{credentials.APIKeyField: key})
	if err := store.Save(context.Background(), credential); err != nil {
		return err
	}
	fmt.Printf("API key for %s saved.\n", provider)
	return nil
}

func runCredentialVerify(_ *cobra.Command, args []string) error {
	provider := credentials.Normalize(args[0])
	spec, ok := credentials.Spec(provider)
	if !ok {
		return fmt.Errorf("unknown provider %q (known providers: %s)",
			args[0], strings.Join(credentials.Providers(), ", "))
	}
	if spec.HealthEndpoint == "" {
		fmt.Printf("Provider %s cannot be verified automatically (no fixed health endpoint).\n", provider)
		return nil
	}

	store, _, logger, err := openCredentialStore()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), verifyTimeout)
	defer cancel()

	key, err := credentials.NewResolver(store, logger).ResolveAPIKey(ctx, provider, "")
	if err != nil {
		return err
	}

	var body io.Reader
	if spec.HealthMethod == http.MethodPost {
		body = strings.NewReader("{}")
	}
	req, err := http.NewRequestWithContext(ctx, spec.HealthMethod, spec.HealthEndpoint, body)
	if err != nil {
		return fmt.Errorf("building health-check request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if provider == credentials.ProviderAnthropic {
		req.Header.Set("x-api-key", key)
		req.Header.Set("anthropic-version", "2023-06-01")
	} else {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("reaching %s health endpoint: %w", provider, err)
	}
	defer resp.Body.Close()

	// Auth failures are the only negative signal. Other statuses (400 on
	// an empty probe body, 404, 429) mean the key was accepted.
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("verification failed for %s: the API rejected the key (status %d)", provider, resp.StatusCode)
	default:
		fmt.Printf("Credential for %s verified (status %d).\n", provider, resp.StatusCode)
		return nil
	}
}

// promptLine reads one line from stdin. The prompt goes to stderr so
// stdout stays clean for scripting.
func promptLine(label string) (string, error) {
	fmt.Fprintf(os.Stderr, "%s: ", label)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return strings.TrimSpace(scanner.Text()), nil
}
