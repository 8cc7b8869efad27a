package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gosuri/uitable"

	apihandler "outreach-tracker/backend/internal/api/handler"
)

const maxColWidth = 50

func newTable(headers ...interface{}) *uitable.Table {
	table := uitable.New()
	table.MaxColWidth = maxColWidth
	table.AddRow(headers...)
	return table
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printWhoami(userID int64, eid string, roles []string) {
	table := uitable.New()
	table.AddRow("User ID:", userID)
	table.AddRow("eID:", eid)
	table.AddRow("Roles:", joinOrDash(roles))
	fmt.Println(table)
}

func printUsers(users []apihandler.UserResponse) {
	table := newTable("ID", "EID", "NAME", "ROLES")
	for _, u := range users {
		names := make([]string, 0, len(u.Roles))
		for _, r := range u.Roles {
			names = append(names, r.Name)
		}
		table.AddRow(u.ID, u.EID, u.Name, joinOrDash(names))
	}
	fmt.Println(table)
}

func printRoles(roles []apihandler.RoleResponse) {
	table := newTable("ID", "NAME")
	for _, r := range roles {
		table.AddRow(r.ID, r.Name)
	}
	fmt.Println(table)
}

func printAudit(entries []apihandler.AuditEntryResponse) {
	table := newTable("TIME", "EID", "ACTION", "RESOURCE", "IP")
	for _, e := range entries {
		table.AddRow(e.CreatedAt, actor(e), e.Action, e.Resource, e.IP)
	}
	fmt.Println(table)
}

func actor(e apihandler.AuditEntryResponse) string {
	switch {
	case e.EID != "":
		return e.EID
	case e.UserID != 0:
		return "#" + strconv.FormatInt(e.UserID, 10)
	default:
		return "-"
	}
}

func joinOrDash(ss []string) string {
	if len(ss) == 0 {
		return "-"
	}
	return strings.Join(ss, ",")
}
