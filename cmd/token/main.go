// Couchrelay - Real-time console/controller relay hub
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/couchrelay

// Command token mints a session token for local testing. It reads the same
// configuration as the server, so JWT_SECRET and TOKEN_ISSUER must match.
//
//	token -sub tv-livingroom -role console
//	token -sub phone-1 -role controller -nick Alice -ttl 1h
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/tomtom215/couchrelay/internal/auth"
	"github.com/tomtom215/couchrelay/internal/config"
	"github.com/tomtom215/couchrelay/internal/relay"
)

func main() {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}
	if err := run(os.Args[1:], cfg.Security, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(args []string, sec config.SecurityConfig, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("sub", "", "token subject (default: random UUID)")
	role := fs.String("role", string(relay.RoleController), "console, controller or spectator")
	nickname := fs.String("nick", "", "nickname shown to other participants")
	ttl := fs.Duration("ttl", 0, "token lifetime (default: TOKEN_TTL)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := relay.ParseRole(*role)
	if err != nil {
		return err
	}
	if *subject == "" {
		*subject = uuid.NewString()
	}
	if *ttl > 0 {
		sec.TokenTTL = *ttl
	}

	jwtManager, err := auth.NewJWTManager(&sec)
	if err != nil {
		return err
	}
	token, err := jwtManager.GenerateToken(*subject, r, *nickname)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
