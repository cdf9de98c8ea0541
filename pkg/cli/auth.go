package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/mchmarny/riskcascade/pkg/auth"
	"github.com/mchmarny/riskcascade/pkg/net"
	urfave "github.com/urfave/cli/v3"
	"github.com/zalando/go-keyring"
)

const (
	tokenFileName  = "registry_token"
	keyringService = "riskctl"
	keyringUser    = "registry_token"
)

var (
	tokenFlag = &urfave.StringFlag{
		Name:  "token",
		Usage: "Registry access token (read from stdin when not set)",
	}

	deviceFlag = &urfave.BoolFlag{
		Name:  "device",
		Usage: "Obtain the token with the registry device flow (registry_auth in config)",
	}

	authCmd = &urfave.Command{
		Name:            "auth",
		HideHelpCommand: true,
		Usage:           "Store the artifact registry access token",
		Flags:           []urfave.Flag{tokenFlag, deviceFlag},
		Action:          cmdSaveToken,
	}
)

func cmdSaveToken(ctx context.Context, cmd *urfave.Command) error {
	cfg := getConfig(cmd)

	token := cmd.String(tokenFlag.Name)
	if cmd.Bool(deviceFlag.Name) {
		t, err := deviceToken(ctx, cmd, cfg.Conf.RegistryAuth)
		if err != nil {
			return err
		}
		token = t
	}

	if token == "" {
		fmt.Fprint(cmd.Root().Writer, "Registry token: ")
		line, err := bufio.NewReader(cmd.Root().Reader).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading token: %w", err)
		}
		token = line
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("token required")
	}

	if err := saveRegistryToken(cfg.HomeDir, token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}

	fmt.Fprintln(cmd.Root().Writer, "Token saved")
	return nil
}

func deviceToken(ctx context.Context, cmd *urfave.Command, e *auth.Endpoint) (string, error) {
	if e == nil {
		return "", errors.New("registry_auth not set in config")
	}

	client, err := net.GetHTTPClient()
	if err != nil {
		return "", fmt.Errorf("creating HTTP client: %w", err)
	}

	code, err := auth.GetDeviceCode(ctx, client, *e)
	if err != nil {
		return "", fmt.Errorf("getting device code: %w", err)
	}

	out := cmd.Root().Writer
	fmt.Fprintf(out, "1). Copy this code: %s\n", code.UserCode)
	fmt.Fprintf(out, "2). Navigate to this URL in your browser to authenticate: %s\n", code.VerificationURI)
	fmt.Fprintln(out, "3). Waiting for approval...")

	t, err := auth.GetToken(ctx, client, *e, code)
	if err != nil {
		return "", fmt.Errorf("getting token: %w", err)
	}
	return t.AccessToken, nil
}

func saveRegistryToken(dir, token string) error {
	if err := keyring.Set(keyringService, keyringUser, token); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return saveRegistryTokenFile(dir, token)
	}

	// Clean up legacy file if it exists
	os.Remove(path.Join(dir, tokenFileName))

	return nil
}

func getRegistryToken(dir string) (string, error) {
	// Try keychain first
	token, err := keyring.Get(keyringService, keyringUser)
	if err == nil && token != "" {
		return token, nil
	}

	// Fall back to file
	token, err = getRegistryTokenFile(dir)
	if err != nil {
		return "", err
	}

	// Migrate to keychain
	if migrateErr := keyring.Set(keyringService, keyringUser, token); migrateErr == nil {
		slog.Info("migrated token from file to OS keychain")
		os.Remove(path.Join(dir, tokenFileName))
	}

	return token, nil
}

func saveRegistryTokenFile(dir, token string) error {
	tokenPath := path.Join(dir, tokenFileName)
	return os.WriteFile(tokenPath, []byte(token), 0600)
}

func getRegistryTokenFile(dir string) (string, error) {
	tokenPath := path.Join(dir, tokenFileName)
	b, err := os.ReadFile(tokenPath)
	if err != nil {
		return "", fmt.Errorf("reading token file %s: %w", tokenPath, err)
	}
	return strings.TrimSpace(string(b)), nil
}
