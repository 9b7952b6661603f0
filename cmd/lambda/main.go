// cmd/lambda runs one Bootstrap.RunOnce pass per invocation, triggered by
// an EventBridge schedule rule. The control plane is assembled once at cold
// start and reused across warm invocations, same as the teacher's
// controller-per-cold-start convention.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/prometheus/client_golang/prometheus"

	cmdinternal "github.com/jitsi-contrib/autoscaler/cmd/internal"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()

	if err := xray.Configure(xray.Config{ServiceVersion: "1.2.3"}); err != nil {
		logger.Error("could not configure X-Ray", "error", err)
		os.Exit(1)
	}

	boot, err := cmdinternal.New(ctx, logger, prometheus.DefaultRegisterer)
	if err != nil {
		logger.Error("could not assemble control plane", "error", err)
		os.Exit(1)
	}

	lambda.Start(func(ctx context.Context) error {
		if lc, ok := lambdacontext.FromContext(ctx); ok {
			logger.Info("invocation started", "aws_request_id", lc.AwsRequestID)
		}

		if err := boot.RunOnce(ctx); err != nil {
			return fmt.Errorf("control plane pass failed: %w", err)
		}
		return nil
	})
}
