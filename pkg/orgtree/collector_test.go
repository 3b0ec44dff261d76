package orgtree

import (
	"fmt"
	"io/ioutil"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/organizations"
	"github.com/aws/aws-sdk-go/service/organizations/organizationsiface"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() log.FieldLogger {
	logger := log.New()
	logger.Out = ioutil.Discard
	return logger
}

// fakeOrganizations mimics the Organizations directory for testing.
type fakeOrganizations struct {
	organizationsiface.OrganizationsAPI

	roots    []*organizations.Root
	rootsErr error

	// ous maps an OU id to its direct contents.
	ous map[string]*fakeOU

	// pageSize chunks account and child listings to exercise pagination.
	// Zero means everything on one page.
	pageSize int

	failAccounts map[string]bool
	failChildren map[string]bool
	failDescribe map[string]bool
}

type fakeOU struct {
	name     string
	accounts []*organizations.Account
	children []string
}

func (f *fakeOrganizations) ListRoots(in *organizations.ListRootsInput) (*organizations.ListRootsOutput, error) {
	if f.rootsErr != nil {
		return nil, f.rootsErr
	}
	return &organizations.ListRootsOutput{Roots: f.roots}, nil
}

func (f *fakeOrganizations) DescribeOrganizationalUnit(in *organizations.DescribeOrganizationalUnitInput) (*organizations.DescribeOrganizationalUnitOutput, error) {
	id := aws.StringValue(in.OrganizationalUnitId)
	if f.failDescribe[id] {
		return nil, fmt.Errorf("AccessDeniedException: cannot describe %s", id)
	}
	ou, ok := f.ous[id]
	if !ok {
		return nil, fmt.Errorf("OrganizationalUnitNotFoundException: %s", id)
	}
	return &organizations.DescribeOrganizationalUnitOutput{
		OrganizationalUnit: &organizations.OrganizationalUnit{
			Id:   aws.String(id),
			Name: aws.String(ou.name),
		},
	}, nil
}

func (f *fakeOrganizations) ListAccountsForParentPages(in *organizations.ListAccountsForParentInput, fn func(*organizations.ListAccountsForParentOutput, bool) bool) error {
	parent := aws.StringValue(in.ParentId)
	if f.failAccounts[parent] {
		return fmt.Errorf("TooManyRequestsException: listing accounts for %s", parent)
	}
	ou, ok := f.ous[parent]
	if !ok {
		return fmt.Errorf("ParentNotFoundException: %s", parent)
	}

	accounts := ou.accounts
	for len(accounts) > 0 {
		n := len(accounts)
		if f.pageSize > 0 && f.pageSize < n {
			n = f.pageSize
		}
		page := &organizations.ListAccountsForParentOutput{Accounts: accounts[:n]}
		accounts = accounts[n:]
		if !fn(page, len(accounts) == 0) {
			return nil
		}
	}
	return nil
}

func (f *fakeOrganizations) ListChildrenPages(in *organizations.ListChildrenInput, fn func(*organizations.ListChildrenOutput, bool) bool) error {
	parent := aws.StringValue(in.ParentId)
	if f.failChildren[parent] {
		return fmt.Errorf("TooManyRequestsException: listing children of %s", parent)
	}
	if aws.StringValue(in.ChildType) != organizations.ChildTypeOrganizationalUnit {
		return fmt.Errorf("unexpected child type %q", aws.StringValue(in.ChildType))
	}
	ou, ok := f.ous[parent]
	if !ok {
		return fmt.Errorf("ParentNotFoundException: %s", parent)
	}

	var children []*organizations.Child
	for _, id := range ou.children {
		children = append(children, &organizations.Child{
			Id:   aws.String(id),
			Type: aws.String(organizations.ChildTypeOrganizationalUnit),
		})
	}
	for len(children) > 0 {
		n := len(children)
		if f.pageSize > 0 && f.pageSize < n {
			n = f.pageSize
		}
		page := &organizations.ListChildrenOutput{Children: children[:n]}
		children = children[n:]
		if !fn(page, len(children) == 0) {
			return nil
		}
	}
	return nil
}

func account(id, name, status string) *organizations.Account {
	return &organizations.Account{
		Id:     aws.String(id),
		Name:   aws.String(name),
		Status: aws.String(status),
	}
}

func TestCollectAccountsTransitiveClosure(t *testing.T) {
	// A -> B -> C, one account at each level.
	orgs := &fakeOrganizations{
		ous: map[string]*fakeOU{
			"ou-a": {name: "A", accounts: []*organizations.Account{account("111", "a1", organizations.AccountStatusActive)}, children: []string{"ou-b"}},
			"ou-b": {name: "B", accounts: []*organizations.Account{account("222", "b1", organizations.AccountStatusActive)}, children: []string{"ou-c"}},
			"ou-c": {name: "C", accounts: []*organizations.Account{account("333", "c1", organizations.AccountStatusActive)}},
		},
	}
	collector := NewCollector(testLogger(), orgs)

	accounts := collector.CollectAccounts("ou-a")
	require.Len(t, accounts, 3)
	// pre-order: an OU's own accounts come before its descendants'
	assert.Equal(t, []Account{
		{ID: "111", Name: "a1"},
		{ID: "222", Name: "b1"},
		{ID: "333", Name: "c1"},
	}, accounts)
}

func TestCollectAccountsFiltersInactiveAccounts(t *testing.T) {
	orgs := &fakeOrganizations{
		ous: map[string]*fakeOU{
			"ou-a": {
				name: "A",
				accounts: []*organizations.Account{
					account("111", "active", organizations.AccountStatusActive),
					account("222", "suspended", organizations.AccountStatusSuspended),
				},
				children: []string{"ou-b"},
			},
			"ou-b": {
				name: "B",
				accounts: []*organizations.Account{
					account("333", "pending", organizations.AccountStatusPendingClosure),
				},
			},
		},
	}
	collector := NewCollector(testLogger(), orgs)

	accounts := collector.CollectAccounts("ou-a")
	require.Len(t, accounts, 1)
	assert.Equal(t, "111", accounts[0].ID)
}

func TestCollectAccountsDrainsAllPages(t *testing.T) {
	var many []*organizations.Account
	for i := 0; i < 5; i++ {
		many = append(many, account(fmt.Sprintf("%d", i), fmt.Sprintf("acct-%d", i), organizations.AccountStatusActive))
	}
	orgs := &fakeOrganizations{
		pageSize: 2,
		ous: map[string]*fakeOU{
			"ou-a": {name: "A", accounts: many, children: []string{"ou-b", "ou-c", "ou-d"}},
			"ou-b": {name: "B", accounts: []*organizations.Account{account("10", "b", organizations.AccountStatusActive)}},
			"ou-c": {name: "C", accounts: []*organizations.Account{account("11", "c", organizations.AccountStatusActive)}},
			"ou-d": {name: "D", accounts: []*organizations.Account{account("12", "d", organizations.AccountStatusActive)}},
		},
	}
	collector := NewCollector(testLogger(), orgs)

	accounts := collector.CollectAccounts("ou-a")
	assert.Len(t, accounts, 8)
}

func TestCollectAccountsRecoversFromAccountListingFailure(t *testing.T) {
	// the account listing for ou-a fails, so its whole subtree is skipped
	orgs := &fakeOrganizations{
		ous: map[string]*fakeOU{
			"ou-a": {name: "A", accounts: []*organizations.Account{account("111", "a1", organizations.AccountStatusActive)}, children: []string{"ou-b"}},
			"ou-b": {name: "B", accounts: []*organizations.Account{account("222", "b1", organizations.AccountStatusActive)}},
		},
		failAccounts: map[string]bool{"ou-a": true},
	}
	collector := NewCollector(testLogger(), orgs)

	assert.Empty(t, collector.CollectAccounts("ou-a"))
}

func TestCollectAccountsRecoversFromChildListingFailure(t *testing.T) {
	// direct accounts are kept even when the child listing fails
	orgs := &fakeOrganizations{
		ous: map[string]*fakeOU{
			"ou-a": {name: "A", accounts: []*organizations.Account{account("111", "a1", organizations.AccountStatusActive)}, children: []string{"ou-b"}},
			"ou-b": {name: "B", accounts: []*organizations.Account{account("222", "b1", organizations.AccountStatusActive)}},
		},
		failChildren: map[string]bool{"ou-a": true},
	}
	collector := NewCollector(testLogger(), orgs)

	accounts := collector.CollectAccounts("ou-a")
	require.Len(t, accounts, 1)
	assert.Equal(t, "111", accounts[0].ID)
}

func TestCollectAccountsFailedBranchDoesNotTruncateSiblings(t *testing.T) {
	orgs := &fakeOrganizations{
		ous: map[string]*fakeOU{
			"ou-a": {name: "A", children: []string{"ou-b", "ou-c"}},
			"ou-b": {name: "B", accounts: []*organizations.Account{account("222", "b1", organizations.AccountStatusActive)}},
			"ou-c": {name: "C", accounts: []*organizations.Account{account("333", "c1", organizations.AccountStatusActive)}},
		},
		failAccounts: map[string]bool{"ou-b": true},
	}
	collector := NewCollector(testLogger(), orgs)

	accounts := collector.CollectAccounts("ou-a")
	require.Len(t, accounts, 1)
	assert.Equal(t, "333", accounts[0].ID)
}

func TestRootID(t *testing.T) {
	orgs := &fakeOrganizations{
		roots: []*organizations.Root{
			{Id: aws.String("r-1"), Name: aws.String("Root")},
			{Id: aws.String("r-2"), Name: aws.String("Second")},
		},
	}
	collector := NewCollector(testLogger(), orgs)

	rootID, err := collector.RootID()
	require.NoError(t, err)
	assert.Equal(t, "r-1", rootID)
}

func TestRootIDErrors(t *testing.T) {
	tests := map[string]*fakeOrganizations{
		"listing-fails": {rootsErr: fmt.Errorf("AccessDeniedException")},
		"no-roots":      {},
	}
	for name, orgs := range tests {
		t.Run(name, func(t *testing.T) {
			collector := NewCollector(testLogger(), orgs)
			_, err := collector.RootID()
			assert.Error(t, err)
		})
	}
}

func TestTopLevelOUs(t *testing.T) {
	orgs := &fakeOrganizations{
		pageSize: 1,
		ous: map[string]*fakeOU{
			"r-1":  {name: "Root", children: []string{"ou-1", "ou-2", "ou-3"}},
			"ou-1": {name: "Finance"},
			"ou-2": {name: "Engineering"},
			"ou-3": {name: "Sales"},
		},
	}
	collector := NewCollector(testLogger(), orgs)

	ous, err := collector.TopLevelOUs("r-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ou-1", "ou-2", "ou-3"}, ous)
}

func TestTopLevelOUsError(t *testing.T) {
	orgs := &fakeOrganizations{
		ous:          map[string]*fakeOU{"r-1": {name: "Root"}},
		failChildren: map[string]bool{"r-1": true},
	}
	collector := NewCollector(testLogger(), orgs)

	_, err := collector.TopLevelOUs("r-1")
	assert.Error(t, err)
}

func TestOUName(t *testing.T) {
	orgs := &fakeOrganizations{
		ous:          map[string]*fakeOU{"ou-1": {name: "Finance"}},
		failDescribe: map[string]bool{"ou-2": true},
	}
	collector := NewCollector(testLogger(), orgs)

	name, err := collector.OUName("ou-1")
	require.NoError(t, err)
	assert.Equal(t, "Finance", name)

	_, err = collector.OUName("ou-2")
	assert.Error(t, err)
}
