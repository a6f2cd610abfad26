// Package main provides moderation utilities for operators.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"threadline/internal/bootstrap"
	"threadline/internal/config"
	"threadline/internal/models"
	"threadline/internal/observability"
	"threadline/internal/repository"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  admin issue-session <admin_id>          - Print a new admin session token")
	fmt.Println("  admin revoke-session <token>            - Revoke an admin session")
	fmt.Println("  admin ban <token> <user_id>             - Ban a user and purge their data")
	fmt.Println("  admin purge <user_id>                   - Resume or rerun a purge")
	fmt.Println("  admin reports [status]                  - List reports, newest first")
	fmt.Println("  admin resolve <token> <report_id>       - Resolve a report")
	fmt.Println("  admin reconcile-followers               - Repair follower lists")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	observability.InitLogger(cfg.Env, cfg.LogLevel)

	ctx := context.Background()
	rt, err := bootstrap.InitRuntime(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	err = run(ctx, rt, os.Args[1], os.Args[2:])
	_ = rt.Close()
	if err != nil {
		if models.IsPartialFailure(err) {
			fmt.Println("Purge halted; run `admin purge <user_id>` to resume")
		}
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

func run(ctx context.Context, rt *bootstrap.Runtime, command string, args []string) error {
	need := func(n int) error {
		if len(args) < n {
			usage()
			return fmt.Errorf("expected %d arguments, got %d", n, len(args))
		}
		return nil
	}

	switch command {
	case "issue-session":
		if err := need(1); err != nil {
			return err
		}
		token, err := rt.Sessions.Issue(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(token)

	case "revoke-session":
		if err := need(1); err != nil {
			return err
		}
		return rt.Sessions.Revoke(ctx, args[0])

	case "ban":
		if err := need(2); err != nil {
			return err
		}
		summary, err := rt.Services.Moderation.BanUser(ctx, args[0], args[1])
		printSummary(summary)
		return err

	case "purge":
		if err := need(1); err != nil {
			return err
		}
		summary, err := rt.Services.Purge.PurgeUser(ctx, args[0])
		printSummary(summary)
		return err

	case "reports":
		filter := repository.ReportFilter{}
		if len(args) > 0 {
			filter.Status = models.ReportStatus(args[0])
		}
		reports, err := rt.Services.Reports.ListReports(ctx, filter)
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			fmt.Println("No reports found")
			return nil
		}
		for _, r := range reports {
			fmt.Printf("%s  %-8s  %s:%s  %s\n", r.ID, r.Status, r.TargetType, r.TargetID, r.Reason)
		}

	case "resolve":
		if err := need(2); err != nil {
			return err
		}
		report, err := rt.Services.Moderation.ResolveReport(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Report %s resolved by %s\n", report.ID, report.ResolvedBy)

	case "reconcile-followers":
		repaired, err := rt.Services.Relationships.ReconcileFollowers(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Repaired %d follower lists\n", repaired)

	default:
		usage()
		return fmt.Errorf("unknown command: %s", command)
	}
	return nil
}

func printSummary(summary *models.PurgeSummary) {
	if summary == nil {
		return
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(out))
}
