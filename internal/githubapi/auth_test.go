package githubapi

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writePrivateKeyPEM(t *testing.T, dir string) string {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey() unexpected error: %v", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	path := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		t.Fatalf("os.WriteFile() unexpected error: %v", err)
	}
	return path
}

func TestNewAppClient(t *testing.T) {
	t.Parallel()

	tempDir := t.TempDir()
	validKeyPath := writePrivateKeyPEM(t, tempDir)
	invalidKeyPath := filepath.Join(tempDir, "invalid.pem")
	if err := os.WriteFile(invalidKeyPath, []byte("not-a-key"), 0o600); err != nil {
		t.Fatalf("os.WriteFile(invalid) unexpected error: %v", err)
	}

	testCases := []struct {
		name        string
		auth        AppAuth
		wantErr     bool
		errContains string
	}{
		{
			name:        "missing_app_id",
			auth:        AppAuth{InstallationID: 1, PrivateKeyPath: validKeyPath},
			wantErr:     true,
			errContains: "app id",
		},
		{
			name:        "missing_installation_id",
			auth:        AppAuth{AppID: 1, PrivateKeyPath: validKeyPath},
			wantErr:     true,
			errContains: "installation id",
		},
		{
			name:        "missing_private_key_path",
			auth:        AppAuth{AppID: 1, InstallationID: 1},
			wantErr:     true,
			errContains: "private key path",
		},
		{
			name:        "all_fields_missing_reports_everything",
			auth:        AppAuth{},
			wantErr:     true,
			errContains: "app id must be positive; installation id must be positive; private key path is required",
		},
		{
			name:        "unreadable_private_key",
			auth:        AppAuth{AppID: 1, InstallationID: 1, PrivateKeyPath: invalidKeyPath},
			wantErr:     true,
			errContains: "create github app transport",
		},
		{
			name:        "invalid_api_base_url",
			auth:        AppAuth{AppID: 1, InstallationID: 1, PrivateKeyPath: validKeyPath, APIBaseURL: "://bad-url"},
			wantErr:     true,
			errContains: "parse github api base url",
		},
		{
			name: "valid_configuration",
			auth: AppAuth{
				AppID:          1,
				InstallationID: 1,
				PrivateKeyPath: validKeyPath,
				RequestTimeout: 15 * time.Second,
				APIBaseURL:     "https://github.example.com/api/v3",
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			rest, err := NewAppClient(tc.auth)
			if tc.wantErr {
				if err == nil {
					t.Fatal("NewAppClient() expected error, got nil")
				}
				if tc.errContains != "" && !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, missing %q", err.Error(), tc.errContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("NewAppClient() unexpected error: %v", err)
			}
			if rest == nil || rest.Client == nil {
				t.Fatal("NewAppClient() returned nil client")
			}
			if got := rest.Client.BaseURL.String(); got != "https://github.example.com/api/v3/" {
				t.Fatalf("BaseURL = %q, want trailing slash appended", got)
			}
		})
	}
}

func TestNewRESTClient(t *testing.T) {
	t.Parallel()

	defaulted, err := NewRESTClient(nil, "")
	if err != nil {
		t.Fatalf("NewRESTClient() unexpected error: %v", err)
	}
	if defaulted == nil || defaulted.Client == nil {
		t.Fatal("nil http client must still produce a usable rest client")
	}

	if _, err := NewRESTClient(&http.Client{}, "relative/path"); err == nil {
		t.Fatal("base url without scheme or host must be rejected")
	}
}
