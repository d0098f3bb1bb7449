// Command mint-token issues a development JWT pair for the admin API.
//
//	JWT_SECRET=... mint-token -user admin-1 -church church-A -role admin
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"church-messaging/internal/auth"
	"church-messaging/internal/config"
	"church-messaging/internal/rbac"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, time.Now()); err != nil {
		slog.Error("mint-token failed", "err", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer, now time.Time) error {
	fs := flag.NewFlagSet("mint-token", flag.ContinueOnError)
	userID := fs.String("user", "", "user id (required)")
	churchID := fs.String("church", "", "church id the token is scoped to (required)")
	role := fs.String("role", rbac.RoleAdmin, "admin, staff or super_admin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID == "" || *churchID == "" {
		return fmt.Errorf("-user and -church are required")
	}
	switch *role {
	case rbac.RoleAdmin, rbac.RoleStaff, rbac.RoleSuperAdmin:
	default:
		return fmt.Errorf("unknown role %q", *role)
	}

	cfg, err := config.LoadAuth()
	if err != nil {
		return err
	}
	m, err := auth.NewManager(cfg)
	if err != nil {
		return err
	}
	pair, err := m.IssuePair(now, *userID, *churchID, *role)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    now.Add(cfg.AccessTokenTTL).UTC().Format(time.RFC3339),
	})
}
