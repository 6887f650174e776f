/**
 * @description
 * Core domain models for requests as seen by the claim-service. Requests are owned by
 * the request-management subsystem; this service reads them and only ever moves their
 * status to CLAIM_REQUESTED.
 *
 * @notes
 * - gorm tags describe the shared schema so the repository and migrations agree.
 * - Token amounts are decimal wei values, never floats.
 */

package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Platform identifies the external issue tracker a request was sourced from.
type Platform string

const (
	PlatformGithub Platform = "GITHUB"
)

// ParsePlatform normalizes user input ("github", " GITHUB ") into a known Platform.
func ParsePlatform(raw string) (Platform, bool) {
	switch Platform(strings.ToUpper(strings.TrimSpace(raw))) {
	case PlatformGithub:
		return PlatformGithub, true
	default:
		return "", false
	}
}

// RequestStatus is the lifecycle status of a request.
type RequestStatus string

const (
	RequestStatusOpen           RequestStatus = "OPEN"
	RequestStatusFunded         RequestStatus = "FUNDED"
	RequestStatusClaimable      RequestStatus = "CLAIMABLE"
	RequestStatusClaimRequested RequestStatus = "CLAIM_REQUESTED"
	RequestStatusClaimed        RequestStatus = "CLAIMED"
	RequestStatusClosed         RequestStatus = "CLOSED"
	RequestStatusRemoved        RequestStatus = "REMOVED"
)

// IssueInformation describes the issue behind a request.
type IssueInformation struct {
	Platform   Platform `gorm:"type:varchar(32);not null;index:idx_request_platform,priority:1" json:"platform"`
	PlatformID string   `gorm:"type:varchar(255);not null;index:idx_request_platform,priority:2" json:"platform_id"`
	Owner      string   `gorm:"type:varchar(255)" json:"owner"`
	Repo       string   `gorm:"type:varchar(255)" json:"repo"`
	Number     string   `gorm:"type:varchar(32)" json:"number"`
	Title      string   `gorm:"type:text" json:"title"`
	Link       string   `gorm:"type:text" json:"link"`
}

// Request is a development request (bounty) posted for funding.
type Request struct {
	ID               int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	Status           RequestStatus    `gorm:"type:varchar(32);not null" json:"status"`
	Type             string           `gorm:"type:varchar(32)" json:"type"`
	IssueInformation IssueInformation `gorm:"embedded;embeddedPrefix:issue_" json:"issue_information"`
	Watchers         []RequestWatcher `gorm:"foreignKey:RequestID" json:"-"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (Request) TableName() string {
	return "request"
}

// WatcherIDs returns the user ids watching the request.
func (r *Request) WatcherIDs() []string {
	ids := make([]string, 0, len(r.Watchers))
	for _, w := range r.Watchers {
		ids = append(ids, w.UserID)
	}
	return ids
}

// RequestWatcher links a user to a request they follow.
type RequestWatcher struct {
	RequestID int64  `gorm:"primaryKey" json:"request_id"`
	UserID    string `gorm:"primaryKey;type:varchar(255)" json:"user_id"`
}

func (RequestWatcher) TableName() string {
	return "request_watcher"
}

// TotalFundDto is the sum of all funds in one token for a request.
type TotalFundDto struct {
	TokenAddress string          `json:"token_address"`
	TokenSymbol  string          `json:"token_symbol"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// RequestDto is the display representation of a request handed to the claim resolver
// and carried inside blockchain events.
type RequestDto struct {
	ID                    int64            `json:"id"`
	Status                RequestStatus    `json:"status"`
	Type                  string           `json:"type"`
	IssueInformation      IssueInformation `json:"issue_information"`
	Watchers              []string         `json:"watchers,omitempty"`
	LoggedInUserIsWatcher bool             `json:"logged_in_user_is_watcher"`
	FndFunds              *TotalFundDto    `json:"fnd_funds,omitempty"`
	OtherFunds            *TotalFundDto    `json:"other_funds,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
}
