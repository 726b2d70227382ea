package botengine

import (
	"context"

	domainChatStorage "github.com/zapdesk/zapdesk/domains/chatstorage"
	"github.com/zapdesk/zapdesk/pkg/waid"
)

// StaffMatch identifies a recognized employee sender.
type StaffMatch struct {
	ProfileID string
	Name      string
	Roles     []string
}

// Elevated roles bypass the staff-chatter suppression: these people get
// answered even when their message is not a command.
func (m *StaffMatch) Elevated() bool {
	for _, r := range m.Roles {
		switch r {
		case "supervisor", "admin":
			return true
		}
	}
	return false
}

// EmployeeDetector resolves sender addresses against the staff mapping.
type EmployeeDetector struct {
	repo domainChatStorage.IChatStorageRepository
}

func NewEmployeeDetector(repo domainChatStorage.IChatStorageRepository) *EmployeeDetector {
	return &EmployeeDetector{repo: repo}
}

// Detect walks the candidate addresses in order (LID first, phones can
// be reassigned) and returns the first active staff match, or nil.
func (d *EmployeeDetector) Detect(ctx context.Context, addrs []waid.Address) (*StaffMatch, error) {
	for _, addr := range addrs {
		staff, err := d.repo.FindStaffByAddress(ctx, addr.Canonical)
		if err != nil {
			return nil, err
		}
		if staff != nil {
			return &StaffMatch{
				ProfileID: staff.ProfileID,
				Name:      staff.ProfileName,
				Roles:     staff.Roles,
			}, nil
		}
	}
	return nil, nil
}
