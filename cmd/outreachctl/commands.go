package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	apihandler "outreach-tracker/backend/internal/api/handler"
)

const apiPrefix = "/api/v1"

func runLogin(ctx context.Context, sess *session, cfg cliConfig, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("usage: outreachctl login [eid]")
	}
	eid := ""
	if len(args) == 1 {
		eid = args[0]
	}
	if _, err := sess.api.Login(ctx, eid); err != nil {
		return err
	}
	return printIdentity(sess, cfg)
}

func runLogout(ctx context.Context, sess *session, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: outreachctl logout")
	}
	next, err := sess.api.Logout(ctx)
	if err != nil {
		return err
	}
	fmt.Println("logged out")
	if next != "" && next != "/" {
		fmt.Printf("end the single sign-on session at %s\n", next)
	}
	return nil
}

func runToken(ctx context.Context, sess *session, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: outreachctl token")
	}
	ok, err := sess.api.TryToken(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no session; run `outreachctl login`")
	}
	fmt.Println(sess.api.Store().Token())
	return nil
}

func runWhoami(ctx context.Context, sess *session, cfg cliConfig, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: outreachctl whoami")
	}
	if _, err := sess.api.EnsureToken(ctx); err != nil {
		return err
	}
	// Round-trip so an expired token is refreshed and a revoked one reported.
	var v apihandler.VersionResponse
	if err := sess.api.Do(ctx, http.MethodGet, apiPrefix+"/", nil, &v); err != nil {
		return err
	}
	return printIdentity(sess, cfg)
}

func runUsers(ctx context.Context, sess *session, cfg cliConfig, args []string) error {
	if len(args) > 0 {
		if args[0] != "delete" || len(args) != 2 {
			return fmt.Errorf("usage: outreachctl users [delete <id>]")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid user id %q", args[1])
		}
		var msg apihandler.MessageResponse
		if err := sess.api.Do(ctx, http.MethodDelete, apiPrefix+"/users/"+args[1], nil, &msg); err != nil {
			return err
		}
		fmt.Println(msg.Message)
		return nil
	}

	var users []apihandler.UserResponse
	if err := sess.api.Do(ctx, http.MethodGet, apiPrefix+"/users", nil, &users); err != nil {
		return err
	}
	if cfg.jsonOutput {
		return printJSON(users)
	}
	printUsers(users)
	return nil
}

func runRoles(ctx context.Context, sess *session, cfg cliConfig, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: outreachctl roles")
	}
	var roles []apihandler.RoleResponse
	if err := sess.api.Do(ctx, http.MethodGet, apiPrefix+"/roles", nil, &roles); err != nil {
		return err
	}
	if cfg.jsonOutput {
		return printJSON(roles)
	}
	printRoles(roles)
	return nil
}

func runAudit(ctx context.Context, sess *session, cfg cliConfig, args []string) error {
	path := apiPrefix + "/audit"
	switch len(args) {
	case 0:
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		path += "?limit=" + strconv.Itoa(n)
	default:
		return fmt.Errorf("usage: outreachctl audit [limit]")
	}
	var entries []apihandler.AuditEntryResponse
	if err := sess.api.Do(ctx, http.MethodGet, path, nil, &entries); err != nil {
		return err
	}
	if cfg.jsonOutput {
		return printJSON(entries)
	}
	printAudit(entries)
	return nil
}

func printIdentity(sess *session, cfg cliConfig) error {
	store := sess.api.Store()
	if cfg.jsonOutput {
		return printJSON(map[string]interface{}{
			"user_id": store.UserID(),
			"eid":     store.EID(),
			"roles":   store.Roles(),
		})
	}
	printWhoami(store.UserID(), store.EID(), store.Roles())
	return nil
}
