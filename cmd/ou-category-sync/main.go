package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/costexplorer"
	"github.com/aws/aws-sdk-go/service/organizations"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cloudcost-tools/ou-category-sync/pkg/costcategory"
	"github.com/cloudcost-tools/ou-category-sync/pkg/orgtree"
	"github.com/cloudcost-tools/ou-category-sync/pkg/sync"
)

const envPrefix = "OU_CATEGORY_SYNC"

var (
	defaultSchedule = "@every 24h"
	defaultListen   = "0.0.0.0:8080"
	// the cost-category API is only served out of us-east-1
	defaultCostExplorerRegion = "us-east-1"

	awsRegion          string
	costExplorerRegion string
	schedule           string
	listen             string

	logLevelStr         string
	logFullTimestamp    bool
	logDisableTimestamp bool
)

var rootCmd = &cobra.Command{
	Use:   "ou-category-sync",
	Short: "synchronizes Cost Explorer cost categories with the AWS Organizations OU tree",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "runs a single synchronization and exits",
	Run:   runOnce,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "synchronizes on a schedule and serves the HTTP API",
	Run:   runDaemon,
}

func AddCommands() {
	rootCmd.AddCommand(onceCmd)
	rootCmd.AddCommand(startCmd)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelStr, "log-level", log.InfoLevel.String(), "log level")
	rootCmd.PersistentFlags().BoolVar(&logFullTimestamp, "log-timestamp", true, "log full timestamp if true, otherwise log time since startup")
	rootCmd.PersistentFlags().BoolVar(&logDisableTimestamp, "disable-timestamp", false, "disable timestamp logging")

	rootCmd.PersistentFlags().StringVar(&awsRegion, "aws-region", "", "AWS region for the Organizations client, defaults to the SDK's resolution")
	rootCmd.PersistentFlags().StringVar(&costExplorerRegion, "cost-explorer-region", defaultCostExplorerRegion, "AWS region for the Cost Explorer client")

	startCmd.Flags().StringVar(&schedule, "schedule", defaultSchedule, "cron expression controlling how often synchronization runs")
	startCmd.Flags().StringVar(&listen, "listen", defaultListen, "address for the HTTP API to listen on")
}

func main() {
	AddCommands()

	rootCmd.ParseFlags(os.Args[1:])

	if err := SetFlagsFromEnv(rootCmd.PersistentFlags(), envPrefix); err != nil {
		log.WithError(err).Fatalf("error setting flags from environment variables: %v", err)
	}
	if err := SetFlagsFromEnv(startCmd.Flags(), envPrefix); err != nil {
		log.WithError(err).Fatalf("error setting flags from environment variables: %v", err)
	}

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatalf("error executing command: %v", err)
	}
}

func runOnce(cmd *cobra.Command, args []string) {
	logger := newLogger()

	result := newSyncer(logger).Run()
	if result.Status != sync.StatusSuccess {
		logger.Fatalf("synchronization failed: %s", result.Message)
	}
	logger.Info(result.Message)
}

func runDaemon(cmd *cobra.Command, args []string) {
	logger := newLogger()

	daemon := sync.NewDaemon(logger, newSyncer(logger), schedule, listen)
	if err := daemon.Run(setupSignals()); err != nil {
		logger.WithError(err).Fatal("error occurred while ou-category-sync was running")
	}
	logger.Infof("ou-category-sync has stopped")
}

func newSyncer(logger log.FieldLogger) *sync.Syncer {
	awsSession := session.Must(session.NewSession())

	var orgsCfgs []*aws.Config
	if awsRegion != "" {
		orgsCfgs = append(orgsCfgs, aws.NewConfig().WithRegion(awsRegion))
	}
	orgs := organizations.New(awsSession, orgsCfgs...)
	ce := costexplorer.New(awsSession, aws.NewConfig().WithRegion(costExplorerRegion))

	collector := orgtree.NewCollector(logger, orgs)
	reconciler := costcategory.NewReconciler(logger, ce)
	return sync.NewSyncer(logger, collector, reconciler)
}

// SetFlagsFromEnv parses all registered flags in the given flagset,
// and if they are not already set it attempts to set their values from
// environment variables. Environment variables take the name of the flag but
// are UPPERCASE, and any dashes are replaced by underscores. Environment
// variables additionally are prefixed by the given string followed by
// an underscore. For example, if prefix=PREFIX: some-flag => PREFIX_SOME_FLAG
func SetFlagsFromEnv(fs *pflag.FlagSet, prefix string) (err error) {
	alreadySet := make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) {
		alreadySet[f.Name] = true
	})
	fs.VisitAll(func(f *pflag.Flag) {
		if !alreadySet[f.Name] {
			key := prefix + "_" + strings.ToUpper(strings.Replace(f.Name, "-", "_", -1))
			val := os.Getenv(key)
			if val != "" {
				if serr := fs.Set(f.Name, val); serr != nil {
					err = fmt.Errorf("invalid value %q for %s: %v", val, key, serr)
				}
			}
		}
	})
	return err
}

func setupSignals() context.Context {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-sigs
		log.Infof("got signal %s, performing shutdown", sig)
		cancel()
	}()
	return ctx
}

func newLogger() log.FieldLogger {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:    logFullTimestamp,
		DisableTimestamp: logDisableTimestamp,
	})

	logger := log.WithFields(log.Fields{
		"app": "ou-category-sync",
	})
	logLevel, err := log.ParseLevel(logLevelStr)
	if err != nil {
		logger.WithError(err).Fatalf("invalid log level: %s", logLevelStr)
	}
	logger.Infof("setting log level to %s", logLevel.String())
	logger.Logger.Level = logLevel
	return logger
}
