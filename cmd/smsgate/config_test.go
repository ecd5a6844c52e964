package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jaracil/smsgate"
	"github.com/jessevdk/go-flags"
)

func writeSecrets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOptions_Defaults(t *testing.T) {
	var opts Options
	if _, err := flags.ParseArgs(&opts, []string{"--admin", "+1", "--secret", "s"}); err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if opts.Timeout != 5*time.Second || opts.Pulse != time.Second {
		t.Errorf("Timeout, Pulse = %v, %v, want 5s, 1s", opts.Timeout, opts.Pulse)
	}
	if opts.NotifyPrefix != smsgate.DefaultNotifyPrefix {
		t.Errorf("NotifyPrefix = %q, want %q", opts.NotifyPrefix, smsgate.DefaultNotifyPrefix)
	}
	if opts.initCommands() != nil {
		t.Errorf("initCommands() = %v, want nil for controller defaults", opts.initCommands())
	}
}

func TestOptions_InitCommands(t *testing.T) {
	var opts Options
	if _, err := flags.ParseArgs(&opts, []string{"--init", "AT", "--init", "AT+CMGF=1"}); err != nil {
		t.Fatalf("ParseArgs() error = %v", err)
	}
	if got := opts.initCommands(); len(got) != 2 || got[1] != "AT+CMGF=1" {
		t.Errorf("initCommands() = %v", got)
	}
	opts.NoInit = true
	if got := opts.initCommands(); got == nil || len(got) != 0 {
		t.Errorf("initCommands() with --no-init = %#v, want empty non-nil", got)
	}
}

func TestOptions_Authorization(t *testing.T) {
	file := writeSecrets(t, "admin_identity: \"+38160123456789\"\nsecret_phrase: openrelay\n")
	tests := []struct {
		name     string
		opts     Options
		expected smsgate.AuthorizationRecord
		wantErr  bool
	}{
		{
			name:     "from file",
			opts:     Options{Secrets: file},
			expected: smsgate.AuthorizationRecord{AdminIdentity: "+38160123456789", SecretPhrase: "openrelay"},
		},
		{
			name:     "flags override file",
			opts:     Options{Secrets: file, Secret: "letmein"},
			expected: smsgate.AuthorizationRecord{AdminIdentity: "+38160123456789", SecretPhrase: "letmein"},
		},
		{
			name:     "flags only",
			opts:     Options{Admin: "+1", Secret: "x"},
			expected: smsgate.AuthorizationRecord{AdminIdentity: "+1", SecretPhrase: "x"},
		},
		{name: "missing secret", opts: Options{Admin: "+1"}, wantErr: true},
		{name: "missing file", opts: Options{Secrets: filepath.Join(t.TempDir(), "nope.yaml")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.authorization()
			if tt.wantErr {
				if err == nil {
					t.Errorf("authorization() = %+v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("authorization() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("authorization() = %+v, want %+v", got, tt.expected)
			}
		})
	}
}

func TestOptions_AuthorizationConfigRequired(t *testing.T) {
	file := writeSecrets(t, "admin_identity: \"+1\"\n")
	opts := Options{Secrets: file}
	if _, err := opts.authorization(); !errors.Is(err, smsgate.ErrConfigRequired) {
		t.Errorf("authorization() error = %v, want %v", err, smsgate.ErrConfigRequired)
	}
}

func TestOptions_AuthorizationBadYAML(t *testing.T) {
	file := writeSecrets(t, "admin_identity: [unclosed\n")
	opts := Options{Secrets: file}
	if _, err := opts.authorization(); err == nil {
		t.Error("authorization() with invalid YAML succeeded")
	}
}
