// Package orgtree reads the AWS Organizations OU hierarchy.
package orgtree

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/organizations"
	"github.com/aws/aws-sdk-go/service/organizations/organizationsiface"
	log "github.com/sirupsen/logrus"
)

// Account is an active member account discovered under an OU.
type Account struct {
	ID   string
	Name string
}

// Collector walks the OU tree through the Organizations API.
type Collector struct {
	logger log.FieldLogger
	orgs   organizationsiface.OrganizationsAPI
}

func NewCollector(logger log.FieldLogger, orgs organizationsiface.OrganizationsAPI) *Collector {
	return &Collector{
		logger: logger.WithField("component", "orgtree"),
		orgs:   orgs,
	}
}

// RootID returns the identifier of the organization root. When the API
// reports more than one root the first is used.
func (c *Collector) RootID() (string, error) {
	out, err := c.orgs.ListRoots(&organizations.ListRootsInput{})
	if err != nil {
		return "", fmt.Errorf("listing organization roots: %v", err)
	}
	if len(out.Roots) == 0 {
		return "", fmt.Errorf("organization has no roots")
	}
	return aws.StringValue(out.Roots[0].Id), nil
}

// TopLevelOUs lists the ids of OUs that are direct children of rootID.
func (c *Collector) TopLevelOUs(rootID string) ([]string, error) {
	var ids []string
	err := c.orgs.ListChildrenPages(&organizations.ListChildrenInput{
		ParentId:  aws.String(rootID),
		ChildType: aws.String(organizations.ChildTypeOrganizationalUnit),
	}, func(page *organizations.ListChildrenOutput, _ bool) bool {
		for _, child := range page.Children {
			ids = append(ids, aws.StringValue(child.Id))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("listing top-level OUs under root %s: %v", rootID, err)
	}
	return ids, nil
}

// OUName resolves the display name of an OU. Names are mutable upstream and
// are never cached.
func (c *Collector) OUName(ouID string) (string, error) {
	out, err := c.orgs.DescribeOrganizationalUnit(&organizations.DescribeOrganizationalUnitInput{
		OrganizationalUnitId: aws.String(ouID),
	})
	if err != nil {
		return "", fmt.Errorf("describing OU %s: %v", ouID, err)
	}
	return aws.StringValue(out.OrganizationalUnit.Name), nil
}

// CollectAccounts returns every ACTIVE account directly under ouID and,
// recursively, under its descendant OUs. An OU's own accounts are collected
// before its children's.
//
// Listing failures never abort the walk: a failure listing direct accounts
// skips the rest of that OU's subtree, a failure listing child OUs truncates
// the branch, and whatever was collected up to that point is returned.
func (c *Collector) CollectAccounts(ouID string) []Account {
	var accounts []Account

	err := c.orgs.ListAccountsForParentPages(&organizations.ListAccountsForParentInput{
		ParentId: aws.String(ouID),
	}, func(page *organizations.ListAccountsForParentOutput, _ bool) bool {
		for _, acct := range page.Accounts {
			if aws.StringValue(acct.Status) != organizations.AccountStatusActive {
				continue
			}
			accounts = append(accounts, Account{
				ID:   aws.StringValue(acct.Id),
				Name: aws.StringValue(acct.Name),
			})
		}
		return true
	})
	if err != nil {
		c.logger.WithError(err).Errorf("error getting accounts for OU %s", ouID)
		return accounts
	}

	err = c.orgs.ListChildrenPages(&organizations.ListChildrenInput{
		ParentId:  aws.String(ouID),
		ChildType: aws.String(organizations.ChildTypeOrganizationalUnit),
	}, func(page *organizations.ListChildrenOutput, _ bool) bool {
		for _, child := range page.Children {
			accounts = append(accounts, c.CollectAccounts(aws.StringValue(child.Id))...)
		}
		return true
	})
	if err != nil {
		c.logger.WithError(err).Errorf("error getting child OUs for %s", ouID)
	}

	return accounts
}
