// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package credentials owns user records: creation, password hashing and
// verification, roles and email verification state.
package credentials

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/apperror"
	"codeberg.org/oliverandrich/identity-service/internal/models"
	"codeberg.org/oliverandrich/identity-service/internal/repository"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// CredentialStore is the persistence the service needs.
type CredentialStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	CountAdmins(ctx context.Context) (int64, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	UpdateUserRole(ctx context.Context, id string, role models.Role) error
	SetUserVerified(ctx context.Context, id string, verified bool) error
	UpdateUserProfile(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id string) error
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{3,64}$`)

type Service struct {
	store     CredentialStore
	cost      int
	validator *PasswordValidator
	dummyHash []byte
}

// NewService creates the credential store. cost is the bcrypt work factor and
// is clamped into bcrypt's accepted range.
func NewService(store CredentialStore, cost int, validator *PasswordValidator) *Service {
	cost = min(max(cost, bcrypt.MinCost), bcrypt.MaxCost)
	if validator == nil {
		validator = DefaultPasswordValidator(5)
	}

	// Compared against on unknown usernames so both login failures cost the same.
	dummyHash, _ := bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), cost)

	return &Service{
		store:     store,
		cost:      cost,
		validator: validator,
		dummyHash: dummyHash,
	}
}

// CreateParams holds the fields of a new account.
type CreateParams struct {
	Username    string
	Email       string
	Password    string
	Role        models.Role
	PreVerified bool
}

// Create validates and stores a new user. Uniqueness of username and email is
// enforced by the store, so concurrent creates cannot both succeed.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.User, error) {
	username := strings.TrimSpace(p.Username)
	email := NormalizeEmail(p.Email)
	role := p.Role
	if role == "" {
		role = models.RoleEndUser
	}

	var problems []string
	if err := ValidateUsername(username); err != nil {
		problems = append(problems, err.Error())
	}
	if err := ValidateEmail(email); err != nil {
		problems = append(problems, err.Error())
	}
	if !role.Valid() {
		problems = append(problems, "unknown role")
	}
	for _, v := range s.validator.Validate(p.Password, username, email) {
		problems = append(problems, v.Message)
	}
	if len(problems) > 0 {
		return nil, apperror.WithDetails(apperror.KindInvalidInput, problems[0], problems)
	}

	hash, err := s.hash(p.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:              uuid.NewString(),
		Username:        username,
		Email:           email,
		PasswordHash:    hash,
		Role:            role,
		IsEmailVerified: p.PreVerified,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, mapStoreError(err, "failed to create user")
	}

	slog.Info("user_created", "user_id", user.ID, "username", user.Username, "role", user.Role)
	return user, nil
}

// BatchResult is the outcome of one entry of CreateBatch.
type BatchResult struct {
	Index int
	User  *models.User
	Err   error
}

// CreateBatch creates each entry independently. A failing entry does not
// affect the others.
func (s *Service) CreateBatch(ctx context.Context, params []CreateParams) []BatchResult {
	results := make([]BatchResult, len(params))
	for i, p := range params {
		user, err := s.Create(ctx, p)
		results[i] = BatchResult{Index: i, User: user, Err: err}
	}
	return results
}

// VerifyPassword compares plaintext against the user's hash in constant time.
// A nil user is compared against a dummy hash and never matches.
func (s *Service) VerifyPassword(user *models.User, plaintext string) bool {
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(plaintext))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(plaintext)) == nil
}

// Authenticate looks up a user by username, or by email when the identifier
// contains an @, and checks the password. Unknown users and wrong passwords
// both yield InvalidCredentials after the same amount of hashing work.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)

	var user *models.User
	var err error
	if strings.Contains(identifier, "@") {
		user, err = s.store.GetUserByEmail(ctx, NormalizeEmail(identifier))
	} else {
		user, err = s.store.GetUserByUsername(ctx, identifier)
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.Internal("failed to load user", err)
	}

	if !s.VerifyPassword(user, password) {
		reason := "invalid_password"
		if user == nil {
			reason = "user_not_found"
		}
		slog.Warn("login_failed", "identifier", identifier, "reason", reason)
		return nil, apperror.ErrInvalidCredentials
	}

	return user, nil
}

// SetPassword validates and stores a new password. Sessions are left alone.
func (s *Service) SetPassword(ctx context.Context, userID, newPassword string) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}

	if errs := s.validator.Validate(newPassword, user.Username, user.Email); len(errs) > 0 {
		return invalidPassword(errs)
	}

	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.store.UpdateUserPassword(ctx, userID, hash); err != nil {
		return mapStoreError(err, "failed to update password")
	}

	slog.Info("password_changed", "user_id", userID)
	return nil
}

// CheckPassword applies the password policy without user attributes.
func (s *Service) CheckPassword(password string) error {
	if errs := s.validator.Validate(password); len(errs) > 0 {
		return invalidPassword(errs)
	}
	return nil
}

// SetRole changes a user's role. Promotion to admin is refused here; only
// GrantAdmin can do that.
func (s *Service) SetRole(ctx context.Context, userID string, role models.Role) error {
	if !role.Valid() {
		return apperror.New(apperror.KindInvalidInput, "unknown role")
	}
	if role == models.RoleAdmin {
		return apperror.New(apperror.KindForbidden, "admin role cannot be assigned")
	}

	if err := s.store.UpdateUserRole(ctx, userID, role); err != nil {
		return mapStoreError(err, "failed to update role")
	}

	slog.Info("role_changed", "user_id", userID, "role", role)
	return nil
}

// GrantAdmin promotes a user to admin. Reserved for operator tooling.
func (s *Service) GrantAdmin(ctx context.Context, userID string) error {
	if err := s.store.UpdateUserRole(ctx, userID, models.RoleAdmin); err != nil {
		return mapStoreError(err, "failed to grant admin")
	}
	slog.Info("admin_granted", "user_id", userID)
	return nil
}

// SetVerified marks the user's email as verified. Idempotent.
func (s *Service) SetVerified(ctx context.Context, userID string) error {
	if err := s.store.SetUserVerified(ctx, userID, true); err != nil {
		return mapStoreError(err, "failed to mark email verified")
	}
	return nil
}

// Delete removes a user together with their sessions and verification tokens.
func (s *Service) Delete(ctx context.Context, userID string) error {
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return mapStoreError(err, "failed to delete user")
	}
	slog.Info("user_deleted", "user_id", userID)
	return nil
}

// ProfileUpdate carries optional new values; empty fields stay unchanged.
type ProfileUpdate struct {
	Username string
	Email    string
}

// UpdateProfile changes username and/or email. A changed email is no longer
// verified; the second return value reports that case.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.User, bool, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, false, err
	}

	var problems []string
	if username := strings.TrimSpace(upd.Username); username != "" && username != user.Username {
		if err := ValidateUsername(username); err != nil {
			problems = append(problems, err.Error())
		}
		user.Username = username
	}

	emailChanged := false
	if email := NormalizeEmail(upd.Email); email != "" && email != user.Email {
		if err := ValidateEmail(email); err != nil {
			problems = append(problems, err.Error())
		}
		user.Email = email
		user.IsEmailVerified = false
		emailChanged = true
	}
	if len(problems) > 0 {
		return nil, false, apperror.WithDetails(apperror.KindInvalidInput, problems[0], problems)
	}

	if err := s.store.UpdateUserProfile(ctx, user); err != nil {
		return nil, false, mapStoreError(err, "failed to update profile")
	}

	return user, emailChanged, nil
}

// Get returns a user by ID.
func (s *Service) Get(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, mapStoreError(err, "failed to load user")
	}
	return user, nil
}

// GetByEmail returns a user by email address.
func (s *Service) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, mapStoreError(err, "failed to load user")
	}
	return user, nil
}

// GetByUsername returns a user by username.
func (s *Service) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, mapStoreError(err, "failed to load user")
	}
	return user, nil
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]models.User, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, apperror.Internal("failed to list users", err)
	}
	return users, nil
}

// HasAdmin reports whether at least one admin account exists.
func (s *Service) HasAdmin(ctx context.Context) (bool, error) {
	n, err := s.store.CountAdmins(ctx)
	if err != nil {
		return false, apperror.Internal("failed to count admins", err)
	}
	return n > 0, nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", apperror.Internal("failed to hash password", err)
	}
	return string(hash), nil
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateUsername checks the username format.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username is required")
	}
	if !usernamePattern.MatchString(username) {
		return errors.New("username must be 3-64 characters of letters, digits, '.', '_' or '-'")
	}
	return nil
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("invalid email format")
	}
	return nil
}

func invalidPassword(errs []ValidationError) error {
	messages := make([]string, len(errs))
	for i, e := range errs {
		messages[i] = e.Message
	}
	return apperror.WithDetails(apperror.KindInvalidInput, messages[0], messages)
}

func mapStoreError(err error, message string) error {
	var conflict *repository.ConflictError
	switch {
	case errors.As(err, &conflict):
		msg := apperror.ErrDuplicateIdentity.Message
		if conflict.Field != "" {
			msg = conflict.Field + " already in use"
		}
		return apperror.Wrap(apperror.KindDuplicateIdentity, msg, err)
	case errors.Is(err, repository.ErrConflict):
		return apperror.Wrap(apperror.KindDuplicateIdentity, apperror.ErrDuplicateIdentity.Message, err)
	case errors.Is(err, repository.ErrNotFound):
		return apperror.Wrap(apperror.KindNotFound, "user not found", err)
	default:
		return apperror.Internal(message, err)
	}
}
