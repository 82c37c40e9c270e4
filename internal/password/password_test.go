// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-hsm.
//
// go-hsm is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package password

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"

	"golang.org/x/term"
)

// skipIfInteractive skips tests that require stdin to not be a terminal,
// which is the normal situation under go test.
func skipIfInteractive(t *testing.T) {
	t.Helper()
	if term.IsTerminal(int(syscall.Stdin)) {
		t.Skip("requires non-interactive stdin")
	}
}

func TestNewClearPassword(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr bool
	}{
		{
			name:    "valid password",
			input:   []byte("secure-password-123"),
			wantErr: false,
		},
		{
			name:    "empty password",
			input:   []byte{},
			wantErr: true,
		},
		{
			name:    "nil password",
			input:   nil,
			wantErr: true,
		},
		{
			name:    "password with special characters",
			input:   []byte("p@$$w0rd!#%&*()"),
			wantErr: false,
		},
		{
			name:    "unicode password",
			input:   []byte("пароль密码"),
			wantErr: false,
		},
		{
			name:    "single character password",
			input:   []byte("x"),
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pwd, err := NewClearPassword(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClearPassword() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				if !errors.Is(err, ErrEmptyPassword) {
					t.Errorf("NewClearPassword() error = %v, want ErrEmptyPassword", err)
				}
				return
			}
			if got := pwd.Bytes(); string(got) != string(tt.input) {
				t.Errorf("Bytes() = %q, want %q", got, tt.input)
			}
		})
	}
}

func TestNewClearPassword_CopiesInput(t *testing.T) {
	input := []byte("password")
	pwd, err := NewClearPassword(input)
	if err != nil {
		t.Fatalf("NewClearPassword() error = %v", err)
	}

	// Wiping the caller's buffer must not affect the stored password.
	Zero(input)
	if got := pwd.Bytes(); string(got) != "password" {
		t.Errorf("Bytes() = %q after caller wipe, want %q", got, "password")
	}
}

func TestNewClearPasswordFromString(t *testing.T) {
	pwd, err := NewClearPasswordFromString("password")
	if err != nil {
		t.Fatalf("NewClearPasswordFromString() error = %v", err)
	}
	if got := pwd.Bytes(); string(got) != "password" {
		t.Errorf("Bytes() = %q, want %q", got, "password")
	}

	if _, err := NewClearPasswordFromString(""); !errors.Is(err, ErrEmptyPassword) {
		t.Errorf("NewClearPasswordFromString(\"\") error = %v, want ErrEmptyPassword", err)
	}
}

func TestClearPassword_BytesReturnsCopy(t *testing.T) {
	pwd, err := NewClearPassword([]byte("password"))
	if err != nil {
		t.Fatalf("NewClearPassword() error = %v", err)
	}

	got := pwd.Bytes()
	got[0] = 'X'
	if again := pwd.Bytes(); string(again) != "password" {
		t.Errorf("Bytes() = %q after mutating a returned copy, want %q", again, "password")
	}
}

func TestClearPassword_Clear(t *testing.T) {
	pwd, err := NewClearPassword([]byte("password"))
	if err != nil {
		t.Fatalf("NewClearPassword() error = %v", err)
	}

	pwd.Clear()
	if got := pwd.Bytes(); got != nil {
		t.Errorf("Bytes() = %v after Clear, want nil", got)
	}

	// Clearing twice must not panic.
	pwd.Clear()
}

func TestClearPassword_Redaction(t *testing.T) {
	pwd, err := NewClearPassword([]byte("hunter2"))
	if err != nil {
		t.Fatalf("NewClearPassword() error = %v", err)
	}

	for _, rendered := range []string{
		pwd.String(),
		fmt.Sprintf("%v", pwd),
		fmt.Sprintf("%s", pwd),
		fmt.Sprintf("%#v", pwd),
	} {
		if strings.Contains(rendered, "hunter2") {
			t.Errorf("rendered form %q leaks the password", rendered)
		}
		if !strings.Contains(rendered, "[REDACTED]") {
			t.Errorf("rendered form %q is not redacted", rendered)
		}
	}
}

func TestEqual(t *testing.T) {
	mustPassword := func(s string) *ClearPassword {
		pwd, err := NewClearPasswordFromString(s)
		if err != nil {
			t.Fatalf("NewClearPasswordFromString(%q) error = %v", s, err)
		}
		return pwd
	}

	t.Run("equal passwords", func(t *testing.T) {
		eq, err := Equal(mustPassword("password"), mustPassword("password"))
		if err != nil {
			t.Fatalf("Equal() error = %v", err)
		}
		if !eq {
			t.Error("Equal() = false for identical passwords")
		}
	})

	t.Run("different passwords", func(t *testing.T) {
		eq, err := Equal(mustPassword("password"), mustPassword("Password"))
		if err != nil {
			t.Fatalf("Equal() error = %v", err)
		}
		if eq {
			t.Error("Equal() = true for different passwords")
		}
	})

	t.Run("different lengths", func(t *testing.T) {
		eq, err := Equal(mustPassword("short"), mustPassword("much longer password"))
		if err != nil {
			t.Fatalf("Equal() error = %v", err)
		}
		if eq {
			t.Error("Equal() = true for different lengths")
		}
	})

	t.Run("zeroed operand", func(t *testing.T) {
		a := mustPassword("password")
		a.Clear()
		if _, err := Equal(a, mustPassword("password")); !errors.Is(err, ErrPasswordZeroed) {
			t.Errorf("Equal() error = %v, want ErrPasswordZeroed", err)
		}
		b := mustPassword("password")
		b.Clear()
		if _, err := Equal(mustPassword("password"), b); !errors.Is(err, ErrPasswordZeroed) {
			t.Errorf("Equal() error = %v, want ErrPasswordZeroed", err)
		}
	})
}

func TestZero(t *testing.T) {
	b := []byte("sensitive")
	Zero(b)
	if !bytes.Equal(b, make([]byte, len("sensitive"))) {
		t.Errorf("Zero() left %v", b)
	}
}

func TestResolve(t *testing.T) {
	t.Run("explicit value wins", func(t *testing.T) {
		t.Setenv("HSM_TEST_PASSWORD", "from-env")
		got, err := Resolve("from-flag", "HSM_TEST_PASSWORD", "prompt: ")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if string(got) != "from-flag" {
			t.Errorf("Resolve() = %q, want %q", got, "from-flag")
		}
	})

	t.Run("environment variable is second", func(t *testing.T) {
		t.Setenv("HSM_TEST_PASSWORD", "from-env")
		got, err := Resolve("", "HSM_TEST_PASSWORD", "prompt: ")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if string(got) != "from-env" {
			t.Errorf("Resolve() = %q, want %q", got, "from-env")
		}
	})

	t.Run("empty environment value falls through", func(t *testing.T) {
		skipIfInteractive(t)
		t.Setenv("HSM_TEST_PASSWORD", "")
		_, err := Resolve("", "HSM_TEST_PASSWORD", "prompt: ")
		if !errors.Is(err, ErrNotInteractive) {
			t.Errorf("Resolve() error = %v, want ErrNotInteractive", err)
		}
	})

	t.Run("prompt requires a terminal", func(t *testing.T) {
		skipIfInteractive(t)
		_, err := Resolve("", "HSM_TEST_PASSWORD_UNSET", "prompt: ")
		if !errors.Is(err, ErrNotInteractive) {
			t.Errorf("Resolve() error = %v, want ErrNotInteractive", err)
		}
	})
}

func TestFromTerminal_NotInteractive(t *testing.T) {
	skipIfInteractive(t)

	var out bytes.Buffer
	_, err := FromTerminal(&out, "prompt: ")
	if !errors.Is(err, ErrNotInteractive) {
		t.Fatalf("FromTerminal() error = %v, want ErrNotInteractive", err)
	}
	if out.Len() != 0 {
		t.Errorf("FromTerminal() wrote %q before failing", out.String())
	}
}
