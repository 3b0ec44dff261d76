// ou-category-lambda runs one synchronization per Lambda invocation. The
// trigger payload is opaque and ignored; the response mirrors the run
// outcome as an HTTP-style status envelope.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/costexplorer"
	"github.com/aws/aws-sdk-go/service/organizations"
	log "github.com/sirupsen/logrus"

	"github.com/cloudcost-tools/ou-category-sync/pkg/costcategory"
	"github.com/cloudcost-tools/ou-category-sync/pkg/orgtree"
	"github.com/cloudcost-tools/ou-category-sync/pkg/sync"
)

// the cost-category API is only served out of us-east-1
const costExplorerRegion = "us-east-1"

type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

func handler(ctx context.Context, event json.RawMessage) (Response, error) {
	logger := log.WithFields(log.Fields{
		"app": "ou-category-sync",
	})

	awsSession := session.Must(session.NewSession())
	collector := orgtree.NewCollector(logger, organizations.New(awsSession))
	reconciler := costcategory.NewReconciler(logger, costexplorer.New(awsSession, aws.NewConfig().WithRegion(costExplorerRegion)))

	return newResponse(sync.NewSyncer(logger, collector, reconciler).Run()), nil
}

// newResponse maps a run outcome onto the HTTP-style envelope returned to
// the invoking trigger.
func newResponse(result sync.Result) Response {
	if result.Status != sync.StatusSuccess {
		return Response{
			StatusCode: http.StatusInternalServerError,
			Body:       fmt.Sprintf("Error: %s", result.Message),
		}
	}
	return Response{
		StatusCode: http.StatusOK,
		Body:       result.Message,
	}
}

func main() {
	log.SetFormatter(&log.JSONFormatter{})
	lambda.Start(handler)
}
