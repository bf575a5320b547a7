package services

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const StaffCooldownCapSeconds = 30

var ErrStaffLoginDisabled = errors.New("staff login is not configured")

// CooldownSecondsForFailCount returns min(30, 2^failCount).
func CooldownSecondsForFailCount(failCount int) int {
	return int(BackoffDelay(failCount+1, time.Second, StaffCooldownCapSeconds*time.Second) / time.Second)
}

type loginFailures struct {
	count int
	until time.Time
}

// StaffAuth checks the staff console password and throttles repeated failures per Telegram user.
type StaffAuth struct {
	hash []byte
	now  func() time.Time

	mu       sync.Mutex
	failures map[int64]*loginFailures
}

func NewStaffAuth(passwordHash string) *StaffAuth {
	return &StaffAuth{
		hash:     []byte(passwordHash),
		now:      time.Now,
		failures: make(map[int64]*loginFailures),
	}
}

// WaitSeconds is how long userID must wait before the next attempt (0 if none).
func (a *StaffAuth) WaitSeconds(userID int64) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.waitLocked(userID)
}

func (a *StaffAuth) waitLocked(userID int64) int {
	f := a.failures[userID]
	if f == nil {
		return 0
	}
	if now := a.now(); now.Before(f.until) {
		return int(f.until.Sub(now).Seconds()) + 1
	}
	return 0
}

// Login checks plain for userID. While a cooldown is running the password is not checked and
// the remaining wait is returned. A failed check starts a cooldown of min(30, 2^failures) seconds.
func (a *StaffAuth) Login(userID int64, plain string) (ok bool, wait int, err error) {
	if len(a.hash) == 0 {
		return false, 0, ErrStaffLoginDisabled
	}
	a.mu.Lock()
	if w := a.waitLocked(userID); w > 0 {
		a.mu.Unlock()
		return false, w, nil
	}
	a.mu.Unlock()

	match := bcrypt.CompareHashAndPassword(a.hash, []byte(plain)) == nil

	a.mu.Lock()
	defer a.mu.Unlock()
	if match {
		delete(a.failures, userID)
		return true, 0, nil
	}
	f := a.failures[userID]
	if f == nil {
		f = &loginFailures{}
		a.failures[userID] = f
	}
	f.count++
	f.until = a.now().Add(time.Duration(CooldownSecondsForFailCount(f.count)) * time.Second)
	return false, a.waitLocked(userID), nil
}
