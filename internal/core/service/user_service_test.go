package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/parishdesk/member-system/internal/auth"
	"github.com/parishdesk/member-system/internal/core/domain"
	"github.com/parishdesk/member-system/internal/core/ports"
)

// stubUserRepo is an in-memory ports.UserRepository. It clones records on the
// way in and out and assigns strictly increasing creation timestamps so list
// ordering is deterministic.
type stubUserRepo struct {
	users map[string]*domain.User
	seq   int
	base  time.Time
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		users: make(map[string]*domain.User),
		base:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubUserRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	for _, existing := range r.users {
		if existing.Email == strings.ToLower(user.Email) {
			return nil, domain.ErrDuplicateEmail
		}
		if strings.EqualFold(existing.Username, user.Username) {
			return nil, domain.ErrDuplicateUsername
		}
	}

	r.seq++
	stored := cloneUser(user)
	stored.ID = fmt.Sprintf("user_%03d", r.seq)
	stored.Email = strings.ToLower(stored.Email)
	stored.CreatedAt = r.base.Add(time.Duration(r.seq) * time.Second)
	stored.UpdatedAt = stored.CreatedAt
	r.users[stored.ID] = stored
	return cloneUser(stored), nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *stubUserRepo) Update(_ context.Context, id string, fields map[string]any) (*domain.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "email":
			u.Email = strings.ToLower(v.(string))
		case "username":
			u.Username = v.(string)
		case "password_hash":
			u.PasswordHash = v.(string)
		case "role":
			u.Role = v.(string)
		case "active":
			u.Active = v.(bool)
		}
	}
	u.UpdatedAt = u.UpdatedAt.Add(time.Second)
	return cloneUser(u), nil
}

func (r *stubUserRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.users[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == strings.ToLower(email) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *stubUserRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	for _, u := range r.users {
		if strings.EqualFold(u.Username, username) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *stubUserRepo) List(_ context.Context, filter ports.ListUsersFilter) ([]*domain.User, error) {
	var all []*domain.User
	for _, u := range r.users {
		if filter.ActiveOnly && !u.Active {
			continue
		}
		if filter.Search != "" {
			s := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(u.Username), s) &&
				!strings.Contains(u.Email, s) {
				continue
			}
		}
		all = append(all, cloneUser(u))
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	offset := int(filter.Page.Offset)
	if offset > len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit := int(filter.Page.Limit); limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *stubUserRepo) Count(_ context.Context, activeOnly bool) (int64, error) {
	var n int64
	for _, u := range r.users {
		if activeOnly && !u.Active {
			continue
		}
		n++
	}
	return n, nil
}

type stubThrottle struct {
	allow bool
	err   error
}

func (t *stubThrottle) Allow(context.Context, string) (bool, error) {
	return t.allow, t.err
}

func newTestService(repo *stubUserRepo, throttle ports.LoginThrottle) (*UserService, *auth.TokenService) {
	tokens := auth.NewTokenService("test-secret", time.Hour, 24*time.Hour)
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	return NewUserService(repo, hasher, tokens, throttle, zerolog.Nop()), tokens
}

func TestUserService_Register_Success(t *testing.T) {
	repo := newStubUserRepo()
	svc, _ := newTestService(repo, nil)

	user, err := svc.Register(context.Background(), ports.RegisterInput{
		Email:    "Alice@Example.com",
		Username: "alice",
		Password: "longpassword1",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == "" {
		t.Fatalf("expected assigned identity")
	}
	if user.Email != "alice@example.com" {
		t.Fatalf("email not lowercased: %q", user.Email)
	}
	if user.Role != domain.RoleStandard {
		t.Fatalf("role = %q, want standard", user.Role)
	}
	if !user.Active {
		t.Fatalf("expected active account")
	}
	if user.PasswordHash == "longpassword1" {
		t.Fatalf("password stored in plaintext")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("longpassword1")) != nil {
		t.Fatalf("stored hash does not match password")
	}
}

func TestUserService_Register_Validation(t *testing.T) {
	repo := newStubUserRepo()
	svc, _ := newTestService(repo, nil)

	cases := []ports.RegisterInput{
		{Email: "", Username: "alice", Password: "longpassword1"},
		{Email: "not-an-email", Username: "alice", Password: "longpassword1"},
		{Email: "a@x.com", Username: "al", Password: "longpassword1"},
		{Email: "a@x.com", Username: "alice", Password: "short"},
	}
	for _, input := range cases {
		if _, err := svc.Register(context.Background(), input); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("input %+v: expected ErrValidation, got %v", input, err)
		}
	}
}

func TestUserService_Register_DuplicatesAnyCasing(t *testing.T) {
	repo := newStubUserRepo()
	svc, _ := newTestService(repo, nil)

	if _, err := svc.Register(context.Background(), ports.RegisterInput{
		Email: "a@x.com", Username: "alice", Password: "longpassword1",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Register(context.Background(), ports.RegisterInput{
		Email: "A@X.COM", Username: "bob", Password: "otherpassword",
	}); !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	if _, err := svc.Register(context.Background(), ports.RegisterInput{
		Email: "b@x.com", Username: "ALICE", Password: "otherpassword",
	}); !errors.Is(err, domain.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
}

func TestUserService_RegisterAuthenticate_Scenario(t *testing.T) {
	repo := newStubUserRepo()
	svc, tokens := newTestService(repo, nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, ports.RegisterInput{
		Email: "a@x.com", Username: "alice", Password: "longpassword1",
	}); err != nil {
		t.Fatalf("register alice: %v", err)
	}

	if _, err := svc.Register(ctx, ports.RegisterInput{
		Email: "a@x.com", Username: "bob", Password: "otherpass",
	}); !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail for bob, got %v", err)
	}

	result, err := svc.Authenticate(ctx, "alice", "longpassword1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	claims, err := tokens.Validate(result.AccessToken)
	if err != nil {
		t.Fatalf("validate issued token: %v", err)
	}
	if claims.Role != domain.RoleStandard {
		t.Fatalf("token role claim = %q, want standard", claims.Role)
	}
	if claims.SubjectID != result.User.ID {
		t.Fatalf("token subject = %q, want %q", claims.SubjectID, result.User.ID)
	}

	if _, err := svc.Authenticate(ctx, "alice", "wrongpass"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestUserService_Authenticate_NoEnumeration(t *testing.T) {
	repo := newStubUserRepo()
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, ports.RegisterInput{
		Email: "a@x.com", Username: "alice", Password: "longpassword1",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	_, errWrong := svc.Authenticate(ctx, "alice", "wrongpass")
	_, errUnknown := svc.Authenticate(ctx, "ghost", "longpassword1")

	// Identical error value for both failure modes.
	if errWrong != domain.ErrInvalidCredentials {
		t.Fatalf("wrong password: got %v", errWrong)
	}
	if errUnknown != domain.ErrInvalidCredentials {
		t.Fatalf("unknown identifier: got %v", errUnknown)
	}
}

func TestUserService_Authenticate_ByEmailIdentifier(t *testing.T) {
	repo := newStubUserRepo()
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	if _, err := svc.Register(ctx, ports.RegisterInput{
		Email: "a@x.com", Username: "alice", Password: "longpassword1",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "A@X.com", "longpassword1"); err != nil {
		t.Fatalf("authenticate by email: %v", err)
	}
}

func TestUserService_Authenticate_Inactive(t *testing.T) {
	repo := newStubUserRepo()
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	user, err := svc.Register(ctx, ports.RegisterInput{
		Email: "a@x.com", Username: "alice", Password: "longpassword1",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Deactivate(ctx, user.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "alice", "longpassword1"); !errors.Is(err, domain.ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestUserService_Authenticate_Throttled(t *testing.T) {
	repo := newStubUserRepo()
	svc, _ := newTestService(repo, &stubThrottle{allow: false})

	if _, err := svc.Authenticate(context.Background(), "alice", "whatever"); !errors.Is(err, domain.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}

func TestUserService_Authenticate_ThrottleFailsOpen(t *testing.T) {
	repo := newStubUserRepo()
	svc, _ := newTestService(repo, &stubThrottle{allow: false, err: errors.New("redis down")})
	ctx := context.Background()

	if _, err := svc.Register(ctx, ports.RegisterInput{
		Email: "a@x.com", Username: "alice", Password: "longpassword1",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "alice", "longpassword1"); err != nil {
		t.Fatalf("expected fail-open authentication, got %v", err)
	}
}

func TestUserService_PromoteToAdmin(t *testing.T) {
	repo := newStubUserRepo()
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	target, err := svc.Register(ctx, ports.RegisterInput{
		Email: "a@x.com", Username: "alice", Password: "longpassword1",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	standard := domain.Identity{UserID: "user_999", Role: domain.RoleStandard}
	if _, err := svc.PromoteToAdmin(ctx, standard, target.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	unchanged, err := svc.GetProfile(ctx, target.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if unchanged.Role != domain.RoleStandard {
		t.Fatalf("target role changed despite forbidden promotion")
	}

	admin := domain.Identity{UserID: "user_998", Role: domain.RoleAdmin}
	promoted, err := svc.PromoteToAdmin(ctx, admin, target.ID)
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if promoted.Role != domain.RoleAdmin {
		t.Fatalf("role = %q after promotion", promoted.Role)
	}
}

func TestUserService_Refresh(t *testing.T) {
	repo := newStubUserRepo()
	svc, tokens := newTestService(repo, nil)
	ctx := context.Background()

	user, err := svc.Register(ctx, ports.RegisterInput{
		Email: "a@x.com", Username: "alice", Password: "longpassword1",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	result, err := svc.Authenticate(ctx, "alice", "longpassword1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	// Promote between issuance and refresh: the refreshed token must carry
	// the current role, not the one captured at login.
	admin := domain.Identity{UserID: "user_998", Role: domain.RoleAdmin}
	if _, err := svc.PromoteToAdmin(ctx, admin, user.ID); err != nil {
		t.Fatalf("promote: %v", err)
	}

	access, err := svc.Refresh(ctx, result.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	claims, err := tokens.Validate(access)
	if err != nil {
		t.Fatalf("validate refreshed token: %v", err)
	}
	if claims.Role != domain.RoleAdmin {
		t.Fatalf("refreshed role = %q, want admin", claims.Role)
	}

	// An access token is not redeemable as a refresh token.
	if _, err := svc.Refresh(ctx, result.AccessToken); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestUserService_UpdateProfile(t *testing.T) {
	repo := newStubUserRepo()
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	alice, err := svc.Register(ctx, ports.RegisterInput{
		Email: "a@x.com", Username: "alice", Password: "longpassword1",
	})
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	if _, err := svc.Register(ctx, ports.RegisterInput{
		Email: "b@x.com", Username: "bob", Password: "longpassword2",
	}); err != nil {
		t.Fatalf("register bob: %v", err)
	}

	// Password change without the current password.
	if _, err := svc.UpdateProfile(ctx, alice.ID, ports.UpdateProfileInput{
		NewPassword: "newpassword9",
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	// Wrong current password.
	if _, err := svc.UpdateProfile(ctx, alice.ID, ports.UpdateProfileInput{
		CurrentPassword: "wrong", NewPassword: "newpassword9",
	}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	// Email already held by another user.
	if _, err := svc.UpdateProfile(ctx, alice.ID, ports.UpdateProfileInput{
		Email: "b@x.com",
	}); !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	// Successful combined change.
	updated, err := svc.UpdateProfile(ctx, alice.ID, ports.UpdateProfileInput{
		Email:           "alice@new.com",
		CurrentPassword: "longpassword1",
		NewPassword:     "newpassword9",
	})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Email != "alice@new.com" {
		t.Fatalf("email = %q", updated.Email)
	}
	if _, err := svc.Authenticate(ctx, "alice", "newpassword9"); err != nil {
		t.Fatalf("authenticate with new password: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "alice", "longpassword1"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
}

func TestUserService_List_Pagination(t *testing.T) {
	repo := newStubUserRepo()
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	for i := 1; i <= 25; i++ {
		if _, err := svc.Register(ctx, ports.RegisterInput{
			Email:    fmt.Sprintf("u%02d@x.com", i),
			Username: fmt.Sprintf("user%02d", i),
			Password: "longpassword1",
		}); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}

	page, err := svc.List(ctx, ports.ListUsersInput{Offset: 20, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 5 {
		t.Fatalf("expected 5 users, got %d", len(page))
	}
	for i, u := range page {
		want := fmt.Sprintf("user%02d", 21+i)
		if u.Username != want {
			t.Fatalf("position %d: got %q, want %q", i, u.Username, want)
		}
	}
	for i := 1; i < len(page); i++ {
		if page[i].CreatedAt.Before(page[i-1].CreatedAt) {
			t.Fatalf("list not in creation order")
		}
	}
}

func TestUserService_Count(t *testing.T) {
	repo := newStubUserRepo()
	svc, _ := newTestService(repo, nil)
	ctx := context.Background()

	alice, err := svc.Register(ctx, ports.RegisterInput{
		Email: "a@x.com", Username: "alice", Password: "longpassword1",
	})
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	if _, err := svc.Register(ctx, ports.RegisterInput{
		Email: "b@x.com", Username: "bob", Password: "longpassword1",
	}); err != nil {
		t.Fatalf("register bob: %v", err)
	}
	if err := svc.Deactivate(ctx, alice.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	total, err := svc.Count(ctx, false)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	active, err := svc.Count(ctx, true)
	if err != nil {
		t.Fatalf("count active: %v", err)
	}
	if total != 2 || active != 1 {
		t.Fatalf("total = %d, active = %d", total, active)
	}
}

func TestUserService_GetProfile_NotFound(t *testing.T) {
	repo := newStubUserRepo()
	svc, _ := newTestService(repo, nil)

	if _, err := svc.GetProfile(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
