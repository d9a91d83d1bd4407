package auth

import "testing"

func TestRegisterAndLogin(t *testing.T) {
	m := NewManager()

	userID, token, err := m.Register("player_one", "hunter22")
	if err != nil {
		t.Fatalf("Register err: %v", err)
	}
	if userID == 0 || token == "" {
		t.Fatalf("expected account id and session token, got %d %q", userID, token)
	}

	resolvedID, username, ok := m.ResolveSession(token)
	if !ok {
		t.Fatalf("expected valid session")
	}
	if resolvedID != userID || username != "player_one" {
		t.Fatalf("unexpected session identity: %d %q", resolvedID, username)
	}

	loginID, loginToken, err := m.Login("Player_One", "hunter22")
	if err != nil {
		t.Fatalf("Login err: %v", err)
	}
	if loginID != userID {
		t.Fatalf("login resolved to account %d, want %d", loginID, userID)
	}
	if loginToken == token {
		t.Fatalf("expected a fresh session token on login")
	}
}

func TestRegister_Validation(t *testing.T) {
	m := NewManager()

	if _, _, err := m.Register("x", "hunter22"); err != ErrInvalidUsername {
		t.Fatalf("expected ErrInvalidUsername for short name, got %v", err)
	}
	if _, _, err := m.Register("player_one", "short"); err != ErrInvalidPassword {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}

	if _, _, err := m.Register("player_one", "hunter22"); err != nil {
		t.Fatalf("Register err: %v", err)
	}
	if _, _, err := m.Register("PLAYER_ONE", "hunter22"); err != ErrUsernameTaken {
		t.Fatalf("expected ErrUsernameTaken for case-folded duplicate, got %v", err)
	}
}

func TestLogin_RejectsBadCredentials(t *testing.T) {
	m := NewManager()
	if _, _, err := m.Register("player_one", "hunter22"); err != nil {
		t.Fatalf("Register err: %v", err)
	}

	if _, _, err := m.Login("player_one", "wrongpass"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, _, err := m.Login("nobody", "hunter22"); err != ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestLogout_InvalidatesSession(t *testing.T) {
	m := NewManager()
	_, token, err := m.Register("player_one", "hunter22")
	if err != nil {
		t.Fatalf("Register err: %v", err)
	}

	m.Logout(token)
	if _, _, ok := m.ResolveSession(token); ok {
		t.Fatalf("expected session invalid after logout")
	}
}

func TestResolveSession_UnknownToken(t *testing.T) {
	m := NewManager()
	if _, _, ok := m.ResolveSession("no-such-token"); ok {
		t.Fatalf("expected unknown token to resolve to nothing")
	}
	if _, _, ok := m.ResolveSession(""); ok {
		t.Fatalf("expected empty token to resolve to nothing")
	}
}
