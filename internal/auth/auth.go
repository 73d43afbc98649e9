// Package auth resolves buyers and farmers from the data store and issues
// the access token that carries the identity between requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/Skotchmaster/farmers_market/internal/models"
	"github.com/Skotchmaster/farmers_market/pkg/logging"
	"github.com/Skotchmaster/farmers_market/pkg/tokens"
)

const (
	RoleBuyer  = "buyer"
	RoleFarmer = "farmer"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrValidation         = errors.New("validation")
	ErrConflict           = errors.New("email already registered")
)

type Store interface {
	BuyersByEmail(ctx context.Context, email string) ([]models.Buyer, error)
	FarmersByEmail(ctx context.Context, email string) ([]models.Farmer, error)
	CreateBuyer(ctx context.Context, b models.Buyer) (models.Buyer, error)
	CreateFarmer(ctx context.Context, f models.Farmer) (models.Farmer, error)
	GetBuyer(ctx context.Context, id models.ID) (models.Buyer, error)
	UpdateBuyer(ctx context.Context, b models.Buyer) (models.Buyer, error)
}

type Identity struct {
	ID     models.ID `json:"id"`
	Role   string    `json:"role"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Avatar string    `json:"avatar,omitempty"`
}

type LoginResult struct {
	Identity
	AccessToken string    `json:"-"`
	AccessExp   time.Time `json:"-"`
}

type Service struct {
	Store     Store
	JWTSecret []byte
	TokenTTL  time.Duration

	now func() time.Time
}

func NewService(store Store, secret []byte, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Service{Store: store, JWTSecret: secret, TokenTTL: ttl, now: time.Now}
}

// Login looks the email up among buyers first, then farmers.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	buyers, err := s.Store.BuyersByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup buyers: %w", err)
	}
	for _, b := range buyers {
		if sameEmail(b.Email, email) && samePassword(b.Password, password) {
			return s.issue(Identity{ID: b.ID, Role: RoleBuyer, Name: b.Name, Email: b.Email, Avatar: b.Avatar})
		}
	}

	farmers, err := s.Store.FarmersByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup farmers: %w", err)
	}
	for _, f := range farmers {
		if sameEmail(f.Email, email) && samePassword(f.Password, password) {
			return s.issue(Identity{ID: f.ID, Role: RoleFarmer, Name: f.Name, Email: f.Email, Avatar: f.Avatar})
		}
	}

	l.Warn("login_failed", "reason", "no matching account")
	return nil, ErrInvalidCredentials
}

type RegisterInput struct {
	Role     string `json:"role"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

func (in *RegisterInput) validate() error {
	in.Role = strings.ToLower(strings.TrimSpace(in.Role))
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)

	if in.Role != RoleBuyer && in.Role != RoleFarmer {
		return fmt.Errorf("role must be buyer or farmer: %w", ErrValidation)
	}
	if in.Name == "" {
		return fmt.Errorf("name is required: %w", ErrValidation)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("invalid email: %w", ErrValidation)
	}
	if in.Password == "" {
		return fmt.Errorf("password is required: %w", ErrValidation)
	}
	return nil
}

// Register creates the account in the matching collection and logs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*LoginResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, in.Email); err != nil {
		return nil, err
	}
	hashed, err := hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if in.Role == RoleBuyer {
		b, err := s.Store.CreateBuyer(ctx, models.Buyer{
			Name:      in.Name,
			Email:     in.Email,
			Password:  hashed,
			Phone:     in.Phone,
			Address:   in.Address,
			Avatar:    avatarURL(in.Name, "3b82f6"),
			CreatedAt: s.now().UTC().Format("2006-01-02"),
		})
		if err != nil {
			return nil, fmt.Errorf("create buyer: %w", err)
		}
		return s.issue(Identity{ID: b.ID, Role: RoleBuyer, Name: b.Name, Email: b.Email, Avatar: b.Avatar})
	}

	f, err := s.Store.CreateFarmer(ctx, models.Farmer{
		Name:     in.Name,
		Email:    in.Email,
		Password: hashed,
		Phone:    in.Phone,
		Location: in.Address,
		Avatar:   avatarURL(in.Name, "22c55e"),
	})
	if err != nil {
		return nil, fmt.Errorf("create farmer: %w", err)
	}
	return s.issue(Identity{ID: f.ID, Role: RoleFarmer, Name: f.Name, Email: f.Email, Avatar: f.Avatar})
}

type ProfileInput struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// UpdateProfile rewrites a buyer's contact details and reissues the token so
// the new name travels with it. Email and password are left untouched.
func (s *Service) UpdateProfile(ctx context.Context, id models.ID, in ProfileInput) (*LoginResult, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, fmt.Errorf("name is required: %w", ErrValidation)
	}

	b, err := s.Store.GetBuyer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get buyer %s: %w", id, err)
	}
	b.Name = in.Name
	b.Phone = strings.TrimSpace(in.Phone)
	b.Address = strings.TrimSpace(in.Address)
	b.Avatar = avatarURL(b.Name, "3b82f6")

	saved, err := s.Store.UpdateBuyer(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("update buyer %s: %w", id, err)
	}
	logging.FromContext(ctx).Info("profile_updated", "svc", "auth.profile", "user_id", id.String())
	return s.issue(Identity{ID: saved.ID, Role: RoleBuyer, Name: saved.Name, Email: saved.Email, Avatar: saved.Avatar})
}

func (s *Service) ensureFree(ctx context.Context, email string) error {
	buyers, err := s.Store.BuyersByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("lookup buyers: %w", err)
	}
	farmers, err := s.Store.FarmersByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("lookup farmers: %w", err)
	}
	for _, b := range buyers {
		if sameEmail(b.Email, email) {
			return ErrConflict
		}
	}
	for _, f := range farmers {
		if sameEmail(f.Email, email) {
			return ErrConflict
		}
	}
	return nil
}

func (s *Service) issue(id Identity) (*LoginResult, error) {
	if id.ID == "" {
		return nil, fmt.Errorf("account without id")
	}
	exp := s.now().Add(s.TokenTTL)
	token, err := tokens.NewAccessToken(s.JWTSecret, id.ID.String(), id.Role, id.Name, exp)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &LoginResult{Identity: id, AccessToken: token, AccessExp: exp}, nil
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func sameEmail(stored, email string) bool {
	return normalizeEmail(stored) == email
}

func avatarURL(name, background string) string {
	q := url.Values{
		"name":       {name},
		"background": {background},
		"color":      {"fff"},
	}
	return "https://ui-avatars.com/api/?" + q.Encode()
}
