package domain

import "time"

// Credential is a user's stored API key for one provider.
// At most one active credential per (UserID, Provider) has IsDefault set.
type Credential struct {
	ID              int64
	UserID          int64
	Provider        Provider
	EncryptedSecret string
	ModelName       string
	IsDefault       bool
	IsActive        bool
	LastUsedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CredentialUpdate carries the optional fields of a credential update.
// Nil fields are left unchanged.
type CredentialUpdate struct {
	EncryptedSecret *string
	ModelName       *string
	IsDefault       *bool
	IsActive        *bool
}

// IsEmpty reports whether the update changes nothing.
func (u CredentialUpdate) IsEmpty() bool {
	return u.EncryptedSecret == nil && u.ModelName == nil && u.IsDefault == nil && u.IsActive == nil
}

// SelectCredential picks the credential an analysis request should use.
// With a provider, the active default for that provider wins, then the first
// active credential of that provider. Without one, the first active default is used.
func SelectCredential(creds []*Credential, provider Provider) *Credential {
	var fallback *Credential
	for _, c := range creds {
		if !c.IsActive {
			continue
		}
		if provider == "" {
			if c.IsDefault {
				return c
			}
			continue
		}
		if c.Provider != provider {
			continue
		}
		if c.IsDefault {
			return c
		}
		if fallback == nil {
			fallback = c
		}
	}
	return fallback
}
