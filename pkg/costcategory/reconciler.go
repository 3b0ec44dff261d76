// Package costcategory reconciles Cost Explorer cost-category definitions
// against a desired account grouping.
package costcategory

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/costexplorer"
	"github.com/aws/aws-sdk-go/service/costexplorer/costexploreriface"
	log "github.com/sirupsen/logrus"
)

const (
	// NamePrefix precedes the OU display name in every definition this
	// reconciler owns.
	NamePrefix = "OU-"

	// DefaultValue is the category value applied to accounts matched by no
	// rule.
	DefaultValue = "Other"
)

// Name derives the definition name for an OU. The derived name is the
// natural key in the store: reconciliation never creates a second definition
// with the same name.
func Name(ouName string) string {
	return NamePrefix + ouName
}

// Reconciler creates or updates cost-category definitions.
type Reconciler struct {
	logger log.FieldLogger
	ce     costexploreriface.CostExplorerAPI
}

func NewReconciler(logger log.FieldLogger, ce costexploreriface.CostExplorerAPI) *Reconciler {
	return &Reconciler{
		logger: logger.WithField("component", "costcategory"),
		ce:     ce,
	}
}

// Reconcile ensures one definition exists for the OU, with a single rule
// matching accountIDs on the LINKED_ACCOUNT dimension and rule value ouName.
// An existing definition with the derived name is updated in place, its
// rules fully replaced; otherwise one is created with the Other default.
//
// Store failures are logged and swallowed so a failure for one OU cannot
// block reconciliation of the next.
func (r *Reconciler) Reconcile(ouName string, accountIDs []string) {
	name := Name(ouName)
	logger := r.logger.WithField("costCategory", name)

	created, err := r.reconcile(ouName, accountIDs)
	if err != nil {
		reconcileFailedCounter.Inc()
		logger.WithError(err).Errorf("error managing cost category %s", name)
		return
	}
	if created {
		createdCounter.Inc()
		logger.Infof("created cost category %s with %d accounts", name, len(accountIDs))
	} else {
		updatedCounter.Inc()
		logger.Infof("updated cost category %s with %d accounts", name, len(accountIDs))
	}
}

func (r *Reconciler) reconcile(ouName string, accountIDs []string) (created bool, err error) {
	name := Name(ouName)

	arn, found, err := r.findDefinition(name)
	if err != nil {
		return false, err
	}

	rules := []*costexplorer.CostCategoryRule{{
		Value: aws.String(ouName),
		Rule: &costexplorer.Expression{
			Dimensions: &costexplorer.DimensionValues{
				Key:          aws.String(costexplorer.DimensionLinkedAccount),
				Values:       aws.StringSlice(accountIDs),
				MatchOptions: aws.StringSlice([]string{costexplorer.MatchOptionEquals}),
			},
		},
	}}

	if found {
		_, err = r.ce.UpdateCostCategoryDefinition(&costexplorer.UpdateCostCategoryDefinitionInput{
			CostCategoryArn: aws.String(arn),
			RuleVersion:     aws.String(costexplorer.CostCategoryRuleVersionCostCategoryExpressionV1),
			Rules:           rules,
		})
		if err != nil {
			return false, fmt.Errorf("updating cost category definition %s: %v", name, err)
		}
		return false, nil
	}

	_, err = r.ce.CreateCostCategoryDefinition(&costexplorer.CreateCostCategoryDefinitionInput{
		Name:         aws.String(name),
		RuleVersion:  aws.String(costexplorer.CostCategoryRuleVersionCostCategoryExpressionV1),
		Rules:        rules,
		DefaultValue: aws.String(DefaultValue),
	})
	if err != nil {
		return false, fmt.Errorf("creating cost category definition %s: %v", name, err)
	}
	return true, nil
}

// findDefinition drains the definition listing and returns the ARN of the
// definition whose name equals name exactly. The listing is paginated by the
// store, so every page is consumed before deciding a definition is absent.
func (r *Reconciler) findDefinition(name string) (arn string, found bool, err error) {
	err = r.ce.ListCostCategoryDefinitionsPages(&costexplorer.ListCostCategoryDefinitionsInput{},
		func(page *costexplorer.ListCostCategoryDefinitionsOutput, _ bool) bool {
			for _, ref := range page.CostCategoryReferences {
				if aws.StringValue(ref.Name) == name {
					arn = aws.StringValue(ref.CostCategoryArn)
					found = true
					return false
				}
			}
			return true
		})
	if err != nil {
		return "", false, fmt.Errorf("listing cost category definitions: %v", err)
	}
	return arn, found, nil
}
