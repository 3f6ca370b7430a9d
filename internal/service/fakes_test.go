package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/drivepass/internal/errs"
	"github.com/and161185/drivepass/internal/model"
	"github.com/and161185/drivepass/internal/repository"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string][]byte

	getErr    error
	setErr    error
	clearErr  error
	removeErr error
	// failKey fails writes that touch the given key.
	failKey map[string]error
}

var _ repository.CredentialStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore { return &fakeStore{data: map[string][]byte{}} }

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (f *fakeStore) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr(key); err != nil {
		return err
	}
	f.data[key] = append([]byte(nil), value...)
	return nil
}

func (f *fakeStore) SetSession(_ context.Context, token, user []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range []string{repository.KeyToken, repository.KeyUser} {
		if err := f.writeErr(k); err != nil {
			return err
		}
	}
	f.data[repository.KeyToken] = append([]byte(nil), token...)
	f.data[repository.KeyUser] = append([]byte(nil), user...)
	return nil
}

func (f *fakeStore) writeErr(key string) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.failKey[key]
}

func (f *fakeStore) failWrites(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failKey == nil {
		f.failKey = map[string]error{}
	}
	f.failKey[key] = err
}

func (f *fakeStore) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.data, key)
	return nil
}

func (f *fakeStore) ClearAll(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	for _, k := range repository.SessionKeys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func (f *fakeStore) value(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key]
}

type fakeOracle struct {
	mu sync.Mutex

	users     map[string]model.UserRecord // by email
	passwords map[string]string
	rows      map[uuid.UUID]model.IdentityRow
	verified  map[string]bool

	loginErr  error
	lookupErr error
	checkErr  error
	signUpErr error
	resendErr error

	// loginGate, when set, blocks Login until it is closed.
	loginGate chan struct{}
	inLogin   int32
	maxLogin  int32

	logins   int
	lookups  int
	checks   int
	signUps  int
	resends  int
	updates  []model.ProfileUpdate
	verifies []string
}

var _ IdentityOracle = (*fakeOracle)(nil)

func newFakeOracle() *fakeOracle {
	return &fakeOracle{
		users:     map[string]model.UserRecord{},
		passwords: map[string]string{},
		rows:      map[uuid.UUID]model.IdentityRow{},
		verified:  map[string]bool{},
	}
}

// addUser registers an account with the given database-of-record status.
func (f *fakeOracle) addUser(email, pw string, status model.AccountStatus) model.UserRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := model.UserRecord{
		ID:       uuid.Must(uuid.NewV4()),
		FullName: "Jane Driver",
		Email:    email,
		Status:   model.StatusActive,
	}
	f.users[email] = u
	f.passwords[email] = pw
	f.rows[u.ID] = model.IdentityRow{ID: u.ID, Email: email, Status: status, EmailVerified: true}
	return u
}

func (f *fakeOracle) setRow(id uuid.UUID, status model.AccountStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[id]
	row.Status = status
	f.rows[id] = row
}

func (f *fakeOracle) deleteRow(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, id)
}

func (f *fakeOracle) setVerified(email string, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verified[email] = v
}

func (f *fakeOracle) counts() (logins, lookups, checks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins, f.lookups, f.checks
}

func (f *fakeOracle) Login(ctx context.Context, email, pw string) (model.LoginResult, error) {
	n := atomic.AddInt32(&f.inLogin, 1)
	defer atomic.AddInt32(&f.inLogin, -1)
	for {
		m := atomic.LoadInt32(&f.maxLogin)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxLogin, m, n) {
			break
		}
	}
	if f.loginGate != nil {
		select {
		case <-f.loginGate:
		case <-ctx.Done():
			return model.LoginResult{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.loginErr != nil {
		return model.LoginResult{}, f.loginErr
	}
	u, ok := f.users[email]
	if !ok || f.passwords[email] != pw {
		return model.LoginResult{}, &errs.RemoteError{Status: 401, Message: "Invalid email or password", Err: errs.ErrInvalidCredentials}
	}
	return model.LoginResult{Token: "tok-" + u.ID.String(), User: u}, nil
}

func (f *fakeOracle) SignUp(_ context.Context, req model.SignUpRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signUps++
	if f.signUpErr != nil {
		return f.signUpErr
	}
	if _, exists := f.users[req.Email]; exists {
		return &errs.RemoteError{Status: 400, Message: "Email already registered"}
	}
	u := model.UserRecord{ID: uuid.Must(uuid.NewV4()), FullName: req.FullName, Email: req.Email, Status: model.StatusActive}
	f.users[req.Email] = u
	f.passwords[req.Email] = req.Password
	f.rows[u.ID] = model.IdentityRow{ID: u.ID, Email: req.Email, Status: model.StatusActive}
	return nil
}

func (f *fakeOracle) VerifyEmail(_ context.Context, token string) (model.VerificationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifies = append(f.verifies, token)
	if token != "good" {
		return model.VerificationResult{}, &errs.RemoteError{Status: 400, Message: "Invalid or expired token"}
	}
	return model.VerificationResult{Verified: true, Message: "Email verified"}, nil
}

func (f *fakeOracle) ResendVerification(_ context.Context, _ string) (model.VerificationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resends++
	if f.resendErr != nil {
		return model.VerificationResult{}, f.resendErr
	}
	return model.VerificationResult{Sent: true, Message: "Verification email sent"}, nil
}

func (f *fakeOracle) CheckVerification(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.checkErr != nil {
		return false, f.checkErr
	}
	return f.verified[email], nil
}

func (f *fakeOracle) LookupUserRecord(_ context.Context, id uuid.UUID) (*model.IdentityRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	row, ok := f.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &row, nil
}

func (f *fakeOracle) UpdateProfile(_ context.Context, id uuid.UUID, upd model.ProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; !ok {
		return errs.ErrNotFound
	}
	f.updates = append(f.updates, upd)
	return nil
}

// noticeLog records notices in arrival order.
type noticeLog struct {
	mu  sync.Mutex
	got []Notice
}

func (n *noticeLog) add(v Notice) {
	n.mu.Lock()
	n.got = append(n.got, v)
	n.mu.Unlock()
}

func (n *noticeLog) count(v Notice) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, g := range n.got {
		if g == v {
			c++
		}
	}
	return c
}

// failingLimiter allows every action and fails to record hits.
type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, time.Duration, error) { return true, 0, nil }
func (failingLimiter) Hit(context.Context, string) error { return errBoom }
func (failingLimiter) Reset(context.Context, string) error { return nil }

var errBoom = errors.New("boom")
