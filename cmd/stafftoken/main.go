// Package main mints staff JWTs for admins and gate scanners. Staff accounts live outside
// this service; the token is signed with the server's JWT secret.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/union-bmm/backend/config"
	"github.com/union-bmm/backend/internal/auth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if err := run(os.Args[1:], cfg.JWT, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}
}

func run(args []string, jwtCfg config.JWTConfig, stdout, stderr io.Writer) error {
	var (
		staffID string
		name    string
		role    string
		hours   int
	)
	flagSet := pflag.NewFlagSet("stafftoken", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&staffID, "id", "", "staff identifier recorded in request logs (required)")
	flagSet.StringVar(&name, "name", "", "display name, shown on gate dashboards")
	flagSet.StringVarP(&role, "role", "r", auth.RoleGate, "staff role: admin or gate")
	flagSet.IntVar(&hours, "hours", jwtCfg.ExpireHours, "token lifetime in hours")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if staffID == "" {
		return errors.New("--id is required")
	}
	if !auth.ValidRole(role) {
		return fmt.Errorf("unknown role %q (want %s or %s)", role, auth.RoleAdmin, auth.RoleGate)
	}
	if hours <= 0 {
		return errors.New("--hours must be positive")
	}

	token, err := auth.NewJWTService(jwtCfg.Secret, hours).Generate(staffID, name, role)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}
