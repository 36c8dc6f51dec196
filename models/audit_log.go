package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionLoginSucceeded     AuditAction = "login_succeeded"
	AuditActionLoginFailed        AuditAction = "login_failed"
	AuditActionLogout             AuditAction = "logout"
	AuditActionPasswordUpdated    AuditAction = "password_updated"
	AuditActionAccessDenied       AuditAction = "access_denied"
	AuditActionRulesGenerated     AuditAction = "rules_generated"
	AuditActionProfileProvisioned AuditAction = "profile_provisioned"
	AuditActionSessionsRevoked    AuditAction = "sessions_revoked"
)

// AuditLog represents an audit trail entry
type AuditLog struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	AcademyID *uuid.UUID      `json:"academyId,omitempty" db:"academy_id"`
	ActorUID  string          `json:"actorUid,omitempty" db:"actor_uid"`
	Action    AuditAction     `json:"action" db:"action"`
	TargetUID string          `json:"targetUid,omitempty" db:"target_uid"`
	Details   json.RawMessage `json:"details,omitempty" db:"details"`
	IPAddress string          `json:"ipAddress" db:"ip_address"`
	UserAgent string          `json:"userAgent" db:"user_agent"`
	RequestID string          `json:"requestId" db:"request_id"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, actorUID string) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		ActorUID:  actorUID,
		Action:    action,
		Timestamp: time.Now(),
	}
}

// WithAcademy sets the tenant the event belongs to
func (a *AuditLog) WithAcademy(academyID *uuid.UUID) *AuditLog {
	a.AcademyID = academyID
	return a
}

// WithTarget sets the subject the action was applied to
func (a *AuditLog) WithTarget(uid string) *AuditLog {
	a.TargetUID = uid
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}
