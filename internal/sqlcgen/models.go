package sqlcgen

import "time"

type Credential struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type Device struct {
	ID           int64
	CredentialID int64
	Username     string
	Name         string
	IsActive     bool
	LastSeenAt   *time.Time
	CreatedAt    time.Time
}

type AudioResource struct {
	ID          int64
	Name        string
	Description string
	SizeBytes   int64
	UploadedAt  time.Time
}

type AudioResourceData struct {
	AudioResource
	Data []byte
}

type Command struct {
	ID           int64
	Action       string
	ResourceID   *int64
	ResourceName *string
	AllDevices   bool
	CreatedAt    time.Time
}

type DeviceLog struct {
	ID        int64
	DeviceID  int64
	Level     string
	Message   string
	CreatedAt time.Time
}

type BroadcastLog struct {
	ID         int64
	CommandID  *int64
	Action     string
	ResourceID *int64
	ExecutedBy string
	AllDevices bool
	Targets    []int64
	ExecutedAt time.Time
}
