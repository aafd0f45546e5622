// Package service contains application services for credential verification,
// identifier issuance and content access.
package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/accountd/internal/crypto"
	"github.com/and161185/accountd/internal/errs"
	"github.com/and161185/accountd/internal/ident"
	"github.com/and161185/accountd/internal/model"
	"github.com/and161185/accountd/internal/repository"
	"github.com/and161185/accountd/internal/unique"
)

// Verification outcomes passed to a VerificationRecorder.
const (
	OutcomeOK        = "ok"
	OutcomeMalformed = "malformed"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// VerificationRecorder observes credential verification outcomes.
type VerificationRecorder interface {
	Verification(outcome string)
}

type nopVerification struct{}

func (nopVerification) Verification(string) {}

// AuthService defines credential verification and identity lifecycle operations.
type AuthService interface {
	// VerifyBasic authenticates a base64 "username password" credential. A nil identity
	// with a nil error means the credential was rejected; the error is non-nil only when
	// the store failed.
	VerifyBasic(ctx context.Context, encoded string, expectedEmail *string) (*model.Identity, error)
	// ExistsByUsername reports whether the username is taken, case-insensitively.
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	// Register creates an identity with a freshly issued PID.
	Register(ctx context.Context, in RegisterInput) (*model.Identity, error)
	// ChangePassword re-seals the password of an existing identity.
	ChangePassword(ctx context.Context, pid uint32, newPassword string) error
	// RequestEmailConfirmation issues and stores a unique confirmation token and code.
	RequestEmailConfirmation(ctx context.Context, pid uint32) (model.EmailConfirmation, error)
	// ConfirmEmail consumes a pending confirmation.
	ConfirmEmail(ctx context.Context, by ConfirmBy) (*model.Identity, error)
	// GeneratePID returns a PID not present in the store.
	GeneratePID(ctx context.Context) (uint32, error)
	// GenerateEmailToken returns a confirmation token not present in the store.
	GenerateEmailToken(ctx context.Context) (string, error)
	// GenerateEmailCode returns a confirmation code not present in the store.
	GenerateEmailCode(ctx context.Context) (string, error)
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// ConfirmBy selects a pending confirmation by token or by code. Exactly one must be set.
type ConfirmBy struct {
	Token string
	Code  string
}

// Sources of random candidates. Tests replace them to force collisions.
type sources struct {
	pid   func() (uint32, error)
	token func() (string, error)
	code  func() (string, error)
}

type AuthServiceImpl struct {
	identities repository.IdentityRepository
	guard      *unique.Guard
	log        *zap.Logger
	rec        VerificationRecorder
	src        sources
}

var _ AuthService = (*AuthServiceImpl)(nil)

// AuthOption configures AuthServiceImpl.
type AuthOption func(*AuthServiceImpl)

// WithAuthLogger sets the logger.
func WithAuthLogger(log *zap.Logger) AuthOption {
	return func(s *AuthServiceImpl) {
		if log != nil {
			s.log = log
		}
	}
}

// WithVerificationRecorder sets the verification outcome recorder.
func WithVerificationRecorder(r VerificationRecorder) AuthOption {
	return func(s *AuthServiceImpl) {
		if r != nil {
			s.rec = r
		}
	}
}

func withSources(src sources) AuthOption {
	return func(s *AuthServiceImpl) {
		if src.pid != nil {
			s.src.pid = src.pid
		}
		if src.token != nil {
			s.src.token = src.token
		}
		if src.code != nil {
			s.src.code = src.code
		}
	}
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(identities repository.IdentityRepository, guard *unique.Guard, opts ...AuthOption) *AuthServiceImpl {
	if guard == nil {
		guard = unique.New()
	}
	s := &AuthServiceImpl{
		identities: identities,
		guard:      guard,
		log:        zap.NewNop(),
		rec:        nopVerification{},
		src: sources{
			pid:   ident.RandomPID,
			token: ident.RandomOpaqueToken,
			code:  func() (string, error) { return ident.RandomCode(ident.EmailCodeLen) },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseBasic decodes a base64 "username password" credential. The password is
// everything after the first space. Standard padded base64 is tried first, then unpadded.
func ParseBasic(encoded string) (model.CredentialEnvelope, bool) {
	env, err := decodeBasic(encoded)
	return env, err == nil
}

func decodeBasic(encoded string) (model.CredentialEnvelope, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return model.CredentialEnvelope{}, fmt.Errorf("%w: empty", errs.ErrMalformed)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return model.CredentialEnvelope{}, fmt.Errorf("%w: %w", errs.ErrMalformed, err)
		}
	}

	username, password, ok := strings.Cut(string(raw), " ")
	if !ok || username == "" {
		return model.CredentialEnvelope{}, fmt.Errorf("%w: no username", errs.ErrMalformed)
	}
	return model.CredentialEnvelope{Username: username, Password: password}, nil
}

// VerifyBasic implements AuthService.
func (s *AuthServiceImpl) VerifyBasic(ctx context.Context, encoded string, expectedEmail *string) (*model.Identity, error) {
	env, err := decodeBasic(encoded)
	if err != nil {
		s.reject(OutcomeMalformed, err.Error(), "")
		return nil, nil
	}
	env.Email = expectedEmail

	id, err := s.identities.FindOne(ctx, repository.ByUsername(env.Username))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			s.reject(OutcomeRejected, "unknown username", env.Username)
			return nil, nil
		}
		s.rec.Verification(OutcomeError)
		return nil, errs.Store("verify basic", err)
	}

	if env.Email != nil && *env.Email != id.Email {
		s.reject(OutcomeRejected, "email mismatch", env.Username)
		return nil, nil
	}
	if !pkgcrypto.CheckPassword(id.PasswordHash, env.Password, id.PID) {
		s.reject(OutcomeRejected, "password mismatch", env.Username)
		return nil, nil
	}

	s.rec.Verification(OutcomeOK)
	return id, nil
}

func (s *AuthServiceImpl) reject(outcome, reason, username string) {
	s.rec.Verification(outcome)
	s.log.Debug("credential rejected", zap.String("reason", reason), zap.String("username", username))
}

// ExistsByUsername implements AuthService.
func (s *AuthServiceImpl) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if username == "" {
		return false, nil
	}
	ok, err := s.identities.Exists(ctx, repository.ByUsername(username))
	if err != nil {
		return false, errs.Store("exists by username", err)
	}
	return ok, nil
}

// Register implements AuthService. Only PID collisions are retried; a taken
// username is reported as errs.ErrAlreadyExists.
func (s *AuthServiceImpl) Register(ctx context.Context, in RegisterInput) (*model.Identity, error) {
	if in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("register: %w: empty username/password", errs.ErrInvalidInput)
	}
	if !pkgcrypto.IsASCII(in.Password) {
		return nil, fmt.Errorf("register: %w: password must be ASCII", errs.ErrInvalidInput)
	}
	// the credential decoder splits on the first space
	if strings.ContainsFunc(in.Username, unicode.IsSpace) {
		return nil, fmt.Errorf("register: %w: username must not contain whitespace", errs.ErrInvalidInput)
	}

	var created *model.Identity
	_, err := unique.Issue(ctx, s.guard, unique.Spec[uint32]{
		Kind:     errs.FieldPID,
		Generate: s.src.pid,
		Exists:   s.pidExists,
		Commit: func(ctx context.Context, pid uint32) error {
			hash, err := pkgcrypto.SealPassword(in.Password, pid)
			if err != nil {
				return fmt.Errorf("seal password: %w", err)
			}
			id := &model.Identity{
				PID:          pid,
				Username:     in.Username,
				UsernameFlat: strings.ToLower(in.Username),
				Email:        in.Email,
				PasswordHash: hash,
			}
			if err := s.identities.Create(ctx, id); err != nil {
				return classifyCommit(err, errs.FieldPID)
			}
			created = id
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}

	s.log.Info("identity registered", zap.Uint32("pid", created.PID), zap.String("username", created.Username))
	return created, nil
}

// ChangePassword implements AuthService.
func (s *AuthServiceImpl) ChangePassword(ctx context.Context, pid uint32, newPassword string) error {
	if newPassword == "" || !pkgcrypto.IsASCII(newPassword) {
		return fmt.Errorf("change password: %w: password must be non-empty ASCII", errs.ErrInvalidInput)
	}
	hash, err := pkgcrypto.SealPassword(newPassword, pid)
	if err != nil {
		return fmt.Errorf("change password: seal: %w", err)
	}
	if err := s.identities.SetPasswordHash(ctx, pid, hash); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return err
		}
		return errs.Store("change password", err)
	}
	return nil
}

// RequestEmailConfirmation implements AuthService. Token and code are drawn together
// and retried together when either one collides.
func (s *AuthServiceImpl) RequestEmailConfirmation(ctx context.Context, pid uint32) (model.EmailConfirmation, error) {
	c, err := unique.Issue(ctx, s.guard, unique.Spec[model.EmailConfirmation]{
		Kind: "email_confirmation",
		Generate: func() (model.EmailConfirmation, error) {
			token, err := s.src.token()
			if err != nil {
				return model.EmailConfirmation{}, err
			}
			code, err := s.src.code()
			if err != nil {
				return model.EmailConfirmation{}, err
			}
			return model.EmailConfirmation{Token: token, Code: code}, nil
		},
		Exists: func(ctx context.Context, c model.EmailConfirmation) (bool, error) {
			taken, err := s.identities.Exists(ctx, repository.ByEmailToken(c.Token))
			if err != nil || taken {
				return taken, err
			}
			return s.identities.Exists(ctx, repository.ByEmailCode(c.Code))
		},
		Commit: func(ctx context.Context, c model.EmailConfirmation) error {
			err := s.identities.SetEmailConfirmation(ctx, pid, c)
			if errors.Is(err, errs.ErrNotFound) {
				return err
			}
			return classifyCommit(err, errs.FieldEmailToken, errs.FieldEmailCode)
		},
	})
	if err != nil {
		return model.EmailConfirmation{}, fmt.Errorf("request email confirmation: %w", err)
	}
	return c, nil
}

// ConfirmEmail implements AuthService.
func (s *AuthServiceImpl) ConfirmEmail(ctx context.Context, by ConfirmBy) (*model.Identity, error) {
	var p repository.Predicate
	switch {
	case by.Token != "" && by.Code == "":
		p = repository.ByEmailToken(by.Token)
	case by.Code != "" && by.Token == "":
		p = repository.ByEmailCode(by.Code)
	default:
		return nil, fmt.Errorf("confirm email: %w: exactly one of token or code", errs.ErrInvalidInput)
	}

	id, err := s.identities.ConsumeEmailConfirmation(ctx, p)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		return nil, errs.Store("confirm email", err)
	}
	s.log.Info("email confirmed", zap.Uint32("pid", id.PID))
	return id, nil
}

// GeneratePID implements AuthService.
func (s *AuthServiceImpl) GeneratePID(ctx context.Context) (uint32, error) {
	return unique.Issue(ctx, s.guard, unique.Spec[uint32]{
		Kind:     errs.FieldPID,
		Generate: s.src.pid,
		Exists:   s.pidExists,
	})
}

// GenerateEmailToken implements AuthService.
func (s *AuthServiceImpl) GenerateEmailToken(ctx context.Context) (string, error) {
	return unique.Issue(ctx, s.guard, unique.Spec[string]{
		Kind:     errs.FieldEmailToken,
		Generate: s.src.token,
		Exists: func(ctx context.Context, token string) (bool, error) {
			return s.identities.Exists(ctx, repository.ByEmailToken(token))
		},
	})
}

// GenerateEmailCode implements AuthService.
func (s *AuthServiceImpl) GenerateEmailCode(ctx context.Context) (string, error) {
	return unique.Issue(ctx, s.guard, unique.Spec[string]{
		Kind:     errs.FieldEmailCode,
		Generate: s.src.code,
		Exists: func(ctx context.Context, code string) (bool, error) {
			return s.identities.Exists(ctx, repository.ByEmailCode(code))
		},
	})
}

func (s *AuthServiceImpl) pidExists(ctx context.Context, pid uint32) (bool, error) {
	return s.identities.Exists(ctx, repository.ByPID(pid))
}

// classifyCommit turns a conflict on one of the retryable fields into errs.ErrCollision.
// Other conflicts keep matching errs.ErrAlreadyExists; anything else is a store failure.
func classifyCommit(err error, retryable ...string) error {
	switch {
	case err == nil:
		return nil
	case errs.ConflictOn(err, retryable...):
		return fmt.Errorf("%w: %w", errs.ErrCollision, err)
	case errors.Is(err, errs.ErrAlreadyExists):
		return err
	default:
		return errs.Store("commit", err)
	}
}
