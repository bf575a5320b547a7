package services

import (
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestCooldownSecondsForFailCount(t *testing.T) {
	tests := []struct {
		failCount int
		want      int
	}{
		{0, 1},   // 2^0=1
		{1, 2},   // 2^1=2
		{2, 4},   // 2^2=4
		{3, 8},   // 2^3=8
		{4, 16},  // 2^4=16
		{5, 30},  // 2^5=32 -> cap 30
		{6, 30},  // 2^6=64 -> cap 30
		{10, 30}, // cap 30
	}
	for _, tt := range tests {
		got := CooldownSecondsForFailCount(tt.failCount)
		if got != tt.want {
			t.Errorf("CooldownSecondsForFailCount(%d) = %d, want %d", tt.failCount, got, tt.want)
		}
	}
}

func TestGenerateStaffPassword(t *testing.T) {
	for i := 0; i < 20; i++ {
		p, err := GenerateStaffPassword()
		if err != nil {
			t.Fatal(err)
		}
		if len(p) != staffPasswordLen {
			t.Errorf("len(%q) = %d, want %d", p, len(p), staffPasswordLen)
		}
		for _, class := range []string{upperLetters, lowerLetters, digits, symbols} {
			if !strings.ContainsAny(p, class) {
				t.Errorf("password %q has no character from %q", p, class)
			}
		}
	}
}

func TestHashStaffPassword(t *testing.T) {
	if _, err := HashStaffPassword(""); err == nil {
		t.Error("HashStaffPassword(\"\") succeeded")
	}
	h, err := HashStaffPassword("s3cret!")
	if err != nil {
		t.Fatal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(h), []byte("s3cret!")) != nil {
		t.Error("hash does not match its password")
	}
}

func TestStaffAuthLogin(t *testing.T) {
	hash, _ := bcrypt.GenerateFromPassword([]byte("open-sesame"), bcrypt.MinCost)
	a := NewStaffAuth(string(hash))
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a.now = func() time.Time { return clock }

	ok, wait, err := a.Login(7, "wrong")
	if ok || err != nil || wait != 3 {
		t.Errorf("first failure = %v, %d, %v; want false, 3, nil", ok, wait, err)
	}
	ok, wait, _ = a.Login(7, "open-sesame")
	if ok || wait == 0 {
		t.Errorf("login during cooldown = %v, wait %d; want refused with a wait", ok, wait)
	}
	if a.WaitSeconds(8) != 0 {
		t.Error("cooldown leaked to another user")
	}

	clock = clock.Add(3 * time.Second)
	ok, wait, _ = a.Login(7, "wrong")
	if ok || wait != 5 {
		t.Errorf("second failure = %v, wait %d; want false, 5", ok, wait)
	}
	clock = clock.Add(5 * time.Second)
	ok, _, _ = a.Login(7, "open-sesame")
	if !ok {
		t.Fatal("correct password refused after cooldown")
	}
	if a.WaitSeconds(7) != 0 {
		t.Error("cooldown kept after a successful login")
	}
}

func TestStaffAuthDisabled(t *testing.T) {
	a := NewStaffAuth("")
	if _, _, err := a.Login(1, "x"); !errors.Is(err, ErrStaffLoginDisabled) {
		t.Errorf("Login error = %v, want ErrStaffLoginDisabled", err)
	}
}
