// Package account implements privileged credential mutations: password
// updates performed by a super-admin and profile provisioning.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/upb/academy-hub/identity"
	"github.com/upb/academy-hub/models"
	"github.com/upb/academy-hub/repositories"
	"github.com/upb/academy-hub/services"
	"github.com/upb/academy-hub/services/audit"
	"github.com/upb/academy-hub/utils"
	"go.uber.org/zap"
)

// CredentialProvider mutates credentials held by the identity provider
type CredentialProvider interface {
	UpdatePassword(ctx context.Context, uid, newPassword string) error
}

// UpdatePasswordRequest is the body of a role-elevation password change
type UpdatePasswordRequest struct {
	TargetUID   string `json:"targetUid" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// ProvisionRequest describes a profile to create together with its password
type ProvisionRequest struct {
	UID         string      `validate:"omitempty,max=128"`
	Email       string      `validate:"required,email"`
	DisplayName string      `validate:"omitempty,max=200"`
	Role        models.Role `validate:"required,role"`
	AcademySlug string
	Password    string `validate:"required"`
}

// Service handles account mutations. Every mutation and its audit entry are
// committed in the same transaction.
type Service struct {
	profiles    repositories.ProfileRepository
	academies   repositories.AcademyRepository
	auditLogs   repositories.AuditRepository
	txManager   repositories.TransactionManager
	credentials CredentialProvider
	logger      *zap.Logger
}

// NewService creates a new account service
func NewService(
	repos *repositories.Repositories,
	txManager repositories.TransactionManager,
	credentials CredentialProvider,
	logger *zap.Logger,
) *Service {
	return &Service{
		profiles:    repos.Profiles,
		academies:   repos.Academies,
		auditLogs:   repos.AuditLogs,
		txManager:   txManager,
		credentials: credentials,
		logger:      logger,
	}
}

// UpdatePassword replaces the password of req.TargetUID and revokes its sessions.
// The caller must already have established that actorUID is a super-admin.
func (s *Service) UpdatePassword(ctx context.Context, actorUID string, req UpdatePasswordRequest, meta audit.RequestMeta) error {
	req.TargetUID = strings.TrimSpace(req.TargetUID)
	if err := utils.ValidateStruct(req); err != nil {
		return services.WrapValidation("targetUid and newPassword are required", err)
	}
	if len(req.NewPassword) < identity.MinPasswordLength {
		return services.WrapValidation(
			fmt.Sprintf("newPassword must be at least %d characters", identity.MinPasswordLength),
			identity.ErrWeakPassword)
	}

	err := s.txManager.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		target, err := s.profiles.GetByUID(ctx, req.TargetUID)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return services.NewDomainError(services.ErrorTypeNotFound,
					fmt.Sprintf("There is no user record corresponding to the provided identifier: %s", req.TargetUID), err)
			}
			return services.WrapInternal("failed to load target profile", err)
		}

		if err := s.credentials.UpdatePassword(ctx, target.UID, req.NewPassword); err != nil {
			if errors.Is(err, identity.ErrRemoteCredentials) {
				return remoteCredentialsError(err)
			}
			return services.WrapInternal("failed to update password", err)
		}

		entry := models.NewAuditLog(models.AuditActionPasswordUpdated, actorUID).
			WithTarget(target.UID).
			WithAcademy(target.AcademyID).
			WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent)
		if err := s.auditLogs.Insert(ctx, entry); err != nil {
			return services.WrapInternal("failed to record audit entry", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("password updated",
		zap.String("actor_uid", actorUID),
		zap.String("target_uid", req.TargetUID),
		zap.String("request_id", meta.RequestID))
	return nil
}

// ProvisionUser creates a profile, links it to an academy when a slug is
// given, and stores its initial password.
func (s *Service) ProvisionUser(ctx context.Context, req ProvisionRequest) (*models.Profile, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := utils.ValidateStruct(req); err != nil {
		return nil, services.WrapValidation("invalid provisioning request", err)
	}
	if req.Role != models.RoleSuperAdmin && req.AcademySlug == "" {
		return nil, services.WrapValidation(fmt.Sprintf("role %s requires an academy", req.Role), nil)
	}
	if req.UID == "" {
		req.UID = uuid.New().String()
	}

	profile := models.NewProfile(req.UID, req.Email, req.DisplayName, req.Role)

	err := s.txManager.InTransaction(ctx, func(ctx context.Context, _ repositories.Transaction) error {
		if _, err := s.profiles.GetByEmail(ctx, req.Email); err == nil {
			return services.NewDomainError(services.ErrorTypeConflict, "profile already exists", services.ErrDuplicateProfile).
				WithDetail("email", req.Email)
		} else if !errors.Is(err, repositories.ErrNotFound) {
			return services.WrapInternal("failed to check existing profile", err)
		}

		if req.AcademySlug != "" {
			academy, err := s.academies.GetBySlug(ctx, req.AcademySlug)
			if err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					return services.NewDomainError(services.ErrorTypeNotFound,
						fmt.Sprintf("academy %q not found", req.AcademySlug), err)
				}
				return services.WrapInternal("failed to load academy", err)
			}
			profile.WithAcademy(academy.ID)
		}

		if err := s.profiles.Create(ctx, profile); err != nil {
			return services.WrapInternal("failed to create profile", err)
		}

		if err := s.credentials.UpdatePassword(ctx, profile.UID, req.Password); err != nil {
			if errors.Is(err, identity.ErrWeakPassword) {
				return services.WrapValidation(err.Error(), err)
			}
			if errors.Is(err, identity.ErrRemoteCredentials) {
				return remoteCredentialsError(err)
			}
			return services.WrapInternal("failed to store password", err)
		}

		entry := models.NewAuditLog(models.AuditActionProfileProvisioned, "").
			WithTarget(profile.UID).
			WithAcademy(profile.AcademyID).
			WithDetails(map[string]string{"role": string(profile.Role)})
		return s.auditLogs.Insert(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("profile provisioned",
		zap.String("uid", profile.UID),
		zap.String("role", string(profile.Role)))
	return profile, nil
}

func remoteCredentialsError(err error) error {
	return services.NewDomainError(services.ErrorTypeUnavailable,
		"Passwords are managed by the external identity provider. Change the password there.", err)
}
