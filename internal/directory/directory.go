// Package directory provides the user and case lookups the core validates against.
package directory

import (
	"context"
	"slices"

	flowerrors "github.com/abatilo/taskflow/internal/errors"
)

// UserDirectory answers whether a user ID refers to a real user.
type UserDirectory interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// CaseInfo is the slice of a case record used for template interpolation.
type CaseInfo struct {
	ID       string `mapstructure:"id" yaml:"id"`
	TenantID string `mapstructure:"tenant" yaml:"tenant"`
	Number   string `mapstructure:"number" yaml:"number"`
	Title    string `mapstructure:"title" yaml:"title"`
}

// CaseDirectory answers case existence per tenant and describes cases.
type CaseDirectory interface {
	CaseExists(ctx context.Context, caseID, tenantID string) (bool, error)
	Case(ctx context.Context, caseID, tenantID string) (CaseInfo, error)
}

// Static is a fixed, in-memory directory. An empty user list accepts every user.
type Static struct {
	users []string
	cases []CaseInfo
}

// NewStatic creates a Static directory.
func NewStatic(users []string, cases []CaseInfo) *Static {
	return &Static{users: users, cases: cases}
}

// UserExists implements UserDirectory.
func (s *Static) UserExists(_ context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if len(s.users) == 0 {
		return true, nil
	}
	return slices.Contains(s.users, userID), nil
}

// CaseExists implements CaseDirectory.
func (s *Static) CaseExists(ctx context.Context, caseID, tenantID string) (bool, error) {
	_, err := s.Case(ctx, caseID, tenantID)
	if flowerrors.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// Case implements CaseDirectory.
func (s *Static) Case(_ context.Context, caseID, tenantID string) (CaseInfo, error) {
	for _, c := range s.cases {
		if c.ID == caseID && (c.TenantID == "" || c.TenantID == tenantID) {
			return c, nil
		}
	}
	return CaseInfo{}, flowerrors.NotFoundError{Kind: "case", ID: caseID}
}
