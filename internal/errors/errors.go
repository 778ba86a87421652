// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrCampaignNotFound is returned when a campaign lookup misses.
type ErrCampaignNotFound struct {
	CampaignID int
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %d not found", e.CampaignID)
}

// Helper constructor
func NewCampaignNotFound(id int) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// IsCampaignNotFound reports whether err wraps an ErrCampaignNotFound.
func IsCampaignNotFound(err error) bool {
	var nf *ErrCampaignNotFound
	return errors.As(err, &nf)
}

var (
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrExecutionNotFound  = errors.New("execution not found")
	ErrDuplicateExecution = errors.New("execution already exists for campaign, customer and firing date")
	ErrNoViableChannel    = errors.New("no viable channel for customer")
	ErrNoProvider         = errors.New("no provider accepts destination")
	ErrUnknownTrigger     = errors.New("unknown trigger type")
	ErrLockHeld           = errors.New("scheduler run already in progress")
	ErrCampaignNotRunning = errors.New("campaign is not running")
)
