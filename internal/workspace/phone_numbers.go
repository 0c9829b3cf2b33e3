package workspace

import (
	"context"
	"time"
)

// PhoneNumber is a workspace-owned number bound to an assistant at the
// telephony provider. BackupAssistantID is the binding captured before a
// pause unbound it; it is the restore point for resume.
type PhoneNumber struct {
	ID                string    `json:"id" db:"id"`
	WorkspaceID       string    `json:"workspace_id" db:"workspace_id"`
	ProviderNumberID  string    `json:"provider_number_id" db:"provider_number_id"`
	Number            string    `json:"number" db:"number"`
	BackupAssistantID string    `json:"backup_assistant_id,omitempty" db:"backup_assistant_id"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// PhoneNumberRepository persists phone numbers and their cached backups.
type PhoneNumberRepository interface {
	ListPhoneNumbers(ctx context.Context, workspaceID string) ([]PhoneNumber, error)
	FindPhoneNumber(ctx context.Context, number string) (PhoneNumber, error)

	// SaveBackup stores assistantID as the backup only if none is cached.
	// It returns the backup in effect afterwards, which is the older value
	// when one already existed.
	SaveBackup(ctx context.Context, workspaceID, phoneNumberID, assistantID string, now time.Time) (string, error)
	ClearBackup(ctx context.Context, workspaceID, phoneNumberID string, now time.Time) error
}
