package domain

import (
	"errors"
	"testing"
)

func TestOrganizationFlags(t *testing.T) {
	if !DefaultOrganizationFlags.Has(OrgFlagAllowJoinLeave) {
		t.Fatal("expected default flags to allow join/leave")
	}
	if DefaultOrganizationFlags.Has(OrgFlagDemoMode) {
		t.Fatal("expected default flags to exclude demo mode")
	}

	flags := OrgFlagEarlyAdopter | OrgFlagDemoMode
	if !flags.Has(OrgFlagEarlyAdopter | OrgFlagDemoMode) {
		t.Fatal("expected combined flags to be set")
	}
	if flags.Has(OrgFlagDemoMode | OrgFlagRequire2FA) {
		t.Fatal("Has must require every bit")
	}
	if OrgFlagDemoMode != 1<<6 {
		t.Fatalf("demo mode bit moved: %d", OrgFlagDemoMode)
	}
}

func TestUserFlags(t *testing.T) {
	var flags UserFlags
	if flags.Has(UserFlagDemoMode) {
		t.Fatal("zero flags must not report demo mode")
	}
	flags |= UserFlagDemoMode
	if !flags.Has(UserFlagDemoMode) || flags.Has(UserFlagNewsletterConsentPrompt) {
		t.Fatalf("unexpected flags %b", flags)
	}
}

func TestSettingKeyString(t *testing.T) {
	key := SettingKey{
		Scope:    Scope{Type: ScopeTypeProject, ID: 5},
		Target:   Target{Type: TargetTypeUser, ID: 1},
		Provider: ExternalProviderEmail,
		Type:     NotificationSettingTypeWorkflow,
	}
	other := key
	other.Scope.ID = 6
	if key.String() == other.String() {
		t.Fatalf("distinct keys share a string form: %s", key)
	}
}

func TestStorageErrorUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := &StorageError{Op: "update settings", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("expected StorageError to unwrap to its cause")
	}
	if err.Error() != "update settings: connection reset" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestUserFlagsScan(t *testing.T) {
	tests := []struct {
		name string
		src  any
		want UserFlags
	}{
		{"null", nil, 0},
		{"int64", int64(3), UserFlagNewsletterConsentPrompt | UserFlagDemoMode},
		{"text", []byte("2"), UserFlagDemoMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := UserFlagDemoMode
			if err := flags.Scan(tt.src); err != nil {
				t.Fatalf("Scan returned unexpected error: %v", err)
			}
			if flags != tt.want {
				t.Fatalf("expected %b, got %b", tt.want, flags)
			}
		})
	}

	var flags UserFlags
	if err := flags.Scan(1.5); err == nil {
		t.Fatal("expected error for float source")
	}
}
