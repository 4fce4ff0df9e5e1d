// Package credentials manages the per-user LLM provider API keys.
//
// Secrets are encrypted before they reach the repository and are only ever
// decrypted for a default-key lookup or a validation probe. Listings expose a
// masked preview instead of the key.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-analysis-service/internal/domain"
	"github.com/helixir/paper-analysis-service/internal/llm"
	"github.com/helixir/paper-analysis-service/internal/repository"
)

// MaskedKey replaces the secret in every listing.
const MaskedKey = "••••••••"

// DefaultValidateTimeout bounds a ValidateAPIKey probe.
const DefaultValidateTimeout = 15 * time.Second

// SecretBox encrypts and decrypts stored secrets.
type SecretBox interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// ProviderFactory builds a provider adapter for a validation probe.
type ProviderFactory interface {
	Create(provider domain.Provider, cfg llm.Config) (llm.Provider, error)
}

// AddInput is the payload of Add.
type AddInput struct {
	Provider  string `validate:"required"`
	APIKey    string `validate:"required,min=8,max=512"`
	ModelName string `validate:"omitempty,max=100"`
	IsDefault bool
}

// UpdateInput is the payload of Update. Nil fields are left unchanged.
type UpdateInput struct {
	APIKey    *string `validate:"omitempty,min=8,max=512"`
	ModelName *string `validate:"omitempty,max=100"`
	IsDefault *bool
}

// View is the caller-facing form of a credential. APIKey is always MaskedKey.
type View struct {
	ID         int64           `json:"id"`
	Provider   domain.Provider `json:"provider"`
	APIKey     string          `json:"api_key"`
	ModelName  string          `json:"model_name,omitempty"`
	IsDefault  bool            `json:"is_default"`
	IsActive   bool            `json:"is_active"`
	LastUsedAt *time.Time      `json:"last_used_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// DefaultKey is a decrypted default credential.
type DefaultKey struct {
	ID        int64           `json:"id"`
	Provider  domain.Provider `json:"provider"`
	APIKey    string          `json:"api_key"`
	ModelName string          `json:"model_name,omitempty"`
}

// Service implements the credential store operations.
type Service struct {
	repo            repository.CredentialRepository
	box             SecretBox
	factory         ProviderFactory
	validate        *validator.Validate
	validateTimeout time.Duration
	logger          zerolog.Logger
}

// NewService creates a credential service.
func NewService(repo repository.CredentialRepository, box SecretBox, factory ProviderFactory, logger zerolog.Logger) *Service {
	return &Service{
		repo:            repo,
		box:             box,
		factory:         factory,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		validateTimeout: DefaultValidateTimeout,
		logger:          logger.With().Str("component", "credentials").Logger(),
	}
}

// Add encrypts and stores a new key for userID.
func (s *Service) Add(ctx context.Context, userID int64, in AddInput) (*View, error) {
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	provider, err := domain.ParseProvider(in.Provider)
	if err != nil {
		return nil, err
	}

	encrypted, err := s.box.Encrypt(in.APIKey)
	if err != nil {
		return nil, fmt.Errorf("encrypt api key: %w", err)
	}

	cred, err := s.repo.Create(ctx, &domain.Credential{
		UserID:          userID,
		Provider:        provider,
		EncryptedSecret: encrypted,
		ModelName:       in.ModelName,
		IsDefault:       in.IsDefault,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int64("key_id", cred.ID).
		Str("provider", provider.String()).
		Bool("is_default", cred.IsDefault).
		Msg("api key added")
	return toView(cred), nil
}

// List returns the user's active keys with masked secrets.
func (s *Service) List(ctx context.Context, userID int64) ([]*View, error) {
	creds, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]*View, 0, len(creds))
	for _, c := range creds {
		views = append(views, toView(c))
	}
	return views, nil
}

// Update changes the secret, the model or the default flag of one key.
func (s *Service) Update(ctx context.Context, userID, id int64, in UpdateInput) (*View, error) {
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}

	upd := domain.CredentialUpdate{ModelName: in.ModelName, IsDefault: in.IsDefault}
	if in.APIKey != nil {
		encrypted, err := s.box.Encrypt(*in.APIKey)
		if err != nil {
			return nil, fmt.Errorf("encrypt api key: %w", err)
		}
		upd.EncryptedSecret = &encrypted
	}

	cred, err := s.repo.Update(ctx, userID, id, upd)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("user_id", userID).
		Int64("key_id", id).
		Bool("secret_changed", in.APIKey != nil).
		Msg("api key updated")
	return toView(cred), nil
}

// SetDefault makes id the user's default for its provider and clears the
// previous default in the same statement.
func (s *Service) SetDefault(ctx context.Context, userID, id int64) (*View, error) {
	isDefault := true
	cred, err := s.repo.Update(ctx, userID, id, domain.CredentialUpdate{IsDefault: &isDefault})
	if err != nil {
		return nil, err
	}
	return toView(cred), nil
}

// Delete soft-deletes a key.
func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if err := s.repo.SoftDelete(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info().Int64("user_id", userID).Int64("key_id", id).Msg("api key deleted")
	return nil
}

// GetDefault returns the decrypted key an analysis for provider would use.
// An empty provider selects the first active default of any provider.
func (s *Service) GetDefault(ctx context.Context, userID int64, provider domain.Provider) (*DefaultKey, error) {
	if provider != "" && !provider.IsValid() {
		return nil, &domain.UnsupportedProviderError{Provider: string(provider)}
	}

	creds, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	cred := domain.SelectCredential(creds, provider)
	if cred == nil {
		return nil, &domain.NoAPIKeyConfiguredError{UserID: userID, Provider: provider}
	}

	secret, err := s.box.Decrypt(cred.EncryptedSecret)
	if err != nil {
		return nil, err
	}
	return &DefaultKey{ID: cred.ID, Provider: cred.Provider, APIKey: secret, ModelName: cred.ModelName}, nil
}

// Validate probes the vendor with the stored key and reports whether it was accepted.
func (s *Service) Validate(ctx context.Context, userID, id int64) (bool, error) {
	cred, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return false, err
	}
	secret, err := s.box.Decrypt(cred.EncryptedSecret)
	if err != nil {
		return false, err
	}

	adapter, err := s.factory.Create(cred.Provider, llm.Config{APIKey: secret, Model: cred.ModelName})
	if err != nil {
		return false, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.validateTimeout)
	defer cancel()

	valid := adapter.ValidateAPIKey(probeCtx)
	s.logger.Info().
		Int64("user_id", userID).
		Int64("key_id", id).
		Str("provider", cred.Provider.String()).
		Bool("valid", valid).
		Msg("api key validated")
	return valid, nil
}

func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return domain.NewValidationError(fieldName(fe.Field()), describeTag(fe))
	}
	return domain.NewValidationError("request", err.Error())
}

func fieldName(field string) string {
	switch field {
	case "APIKey":
		return "api_key"
	case "ModelName":
		return "model_name"
	case "Provider":
		return "provider"
	default:
		return field
	}
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "failed " + fe.Tag() + " check"
	}
}

func toView(c *domain.Credential) *View {
	return &View{
		ID:         c.ID,
		Provider:   c.Provider,
		APIKey:     MaskedKey,
		ModelName:  c.ModelName,
		IsDefault:  c.IsDefault,
		IsActive:   c.IsActive,
		LastUsedAt: c.LastUsedAt,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}
