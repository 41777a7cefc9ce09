package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	remotemem "github.com/dvloznov/expense-sync/internal/remote/inmemory"
)

const debitSMS = "Your account XXXX1234 was debited for INR 1,250.00 at AMAZON. Ref: 12345"

// setupEnv isolates configuration from the developer's machine and selects
// the in-process remote backend.
func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("EXPENSES_CONFIG", "")
	t.Setenv("EXPENSES_LOG_LEVEL", "error")
	t.Setenv("EXPENSES_STORAGE_DRIVER", "sqlite")
	t.Setenv("EXPENSES_REMOTE_BACKEND", "memory")
}

// useDevice switches the environment to the device of email.
func useDevice(t *testing.T, email, dir string) {
	t.Helper()
	t.Setenv("EXPENSES_USER_EMAIL", email)
	t.Setenv("EXPENSES_STORAGE_PATH", filepath.Join(dir, "expenses.db"))
}

func execute(t *testing.T, server *remotemem.Server, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(rootOptions{server: server})
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, server *remotemem.Server, args ...string) string {
	t.Helper()
	out, err := execute(t, server, args...)
	require.NoError(t, err, "expenses %s", strings.Join(args, " "))
	return out
}

func TestSMSParse(t *testing.T) {
	setupEnv(t)

	out := mustExecute(t, nil, "sms", "parse", debitSMS)
	assert.Contains(t, out, "Rule:      debited_inr")
	assert.Contains(t, out, "Amount:    1250.00")
	assert.Contains(t, out, "Direction: Db")

	out = mustExecute(t, nil, "sms", "parse", "Your OTP is 482913")
	assert.Equal(t, "No transaction detected\n", out)
}

func TestSMSAddThenList(t *testing.T) {
	setupEnv(t)
	useDevice(t, "me@x.com", t.TempDir())
	server := remotemem.NewServer()

	out := mustExecute(t, server, "sms", "add", debitSMS)
	assert.Contains(t, out, "Added transaction sms-")

	out = mustExecute(t, server, "sms", "add", debitSMS)
	assert.Equal(t, "Message already processed\n", out)

	out = mustExecute(t, server, "list")
	assert.Contains(t, out, "1250.00")
	assert.Contains(t, out, "Review")
	assert.Contains(t, out, "1 transaction(s)")

	// The match was appended to the own document as well.
	assert.Equal(t, 1, server.Count("me@x.com"))
}

func TestSyncOwn(t *testing.T) {
	setupEnv(t)
	useDevice(t, "me@x.com", t.TempDir())
	server := remotemem.NewServer()

	out := mustExecute(t, server, "sync")
	assert.Equal(t, "No transactions.\n", out)

	mustExecute(t, server, "sms", "add", debitSMS)

	// A second device of the same user receives the record from the cloud.
	useDevice(t, "me@x.com", t.TempDir())
	out = mustExecute(t, server, "sync")
	assert.Contains(t, out, "1250.00")
	assert.NotContains(t, out, "offline")
}

func TestPartnerFlow(t *testing.T) {
	setupEnv(t)
	server := remotemem.NewServer()
	meDir, partnerDir := t.TempDir(), t.TempDir()

	useDevice(t, "me@x.com", meDir)
	mustExecute(t, server, "sms", "add", debitSMS)
	out := mustExecute(t, server, "partner", "share", "P@X.com")
	assert.Contains(t, out, "with P@X.com")

	out = mustExecute(t, server, "partner", "status")
	assert.Contains(t, out, "Partner Mode: on")
	assert.Contains(t, out, "Partner:      p@x.com")

	useDevice(t, "p@x.com", partnerDir)
	out = mustExecute(t, server, "partner", "link", "me@x.com")
	assert.Contains(t, out, "Linked to")

	out = mustExecute(t, server, "sync", "--partner")
	assert.Contains(t, out, "1250.00")
	assert.Contains(t, out, "[me@x.com]")

	out = mustExecute(t, server, "partner", "disable")
	assert.Equal(t, "Partner Mode disabled\n", out)
	out = mustExecute(t, server, "sync", "--partner")
	assert.Equal(t, "No transactions.\n", out)
}

func TestPartnerShareRejectsSelf(t *testing.T) {
	setupEnv(t)
	useDevice(t, "me@x.com", t.TempDir())
	server := remotemem.NewServer()

	_, err := execute(t, server, "partner", "share", "ME@x.com")
	assert.Error(t, err)
	assert.Equal(t, 0, server.Count("me@x.com"), "validation runs before any remote call")
}

func TestImportCSV(t *testing.T) {
	setupEnv(t)
	dir := t.TempDir()
	useDevice(t, "me@x.com", dir)

	path := filepath.Join(dir, "sheet.csv")
	require.NoError(t, os.WriteFile(path, []byte("Detail,Amount,Type,Paid\nRent,\"₹ 18,000.00\",Db,Yes\nSalary,\"₹ 95,000.00\",Cr,Yes\n"), 0o600))

	out := mustExecute(t, nil, "import-csv", path)
	assert.Equal(t, "Imported 2 transaction(s)\n", out)

	out = mustExecute(t, nil, "list")
	require.Contains(t, out, "Rent")
	require.Contains(t, out, "Salary")
	assert.Less(t, strings.Index(out, "Rent"), strings.Index(out, "Salary"), "sheet order is kept")
}

func TestSMSImportBackup(t *testing.T) {
	setupEnv(t)
	dir := t.TempDir()
	useDevice(t, "me@x.com", dir)

	path := filepath.Join(dir, "backup.xml")
	require.NoError(t, os.WriteFile(path, []byte(`<?xml version="1.0" encoding="UTF-8"?>
<smses count="3">
  <sms address="VM-HDFCBK" date="1748736000000" type="1" body="`+debitSMS+`" />
  <sms address="VM-OTP" date="1748736060000" type="1" body="Your OTP is 482913" />
  <sms address="+15550100" date="1748736120000" type="2" body="debited for INR 5" />
</smses>`), 0o600))

	out := mustExecute(t, nil, "sms", "import-backup", path)
	assert.Contains(t, out, "Processed 2 message(s), skipped 0 already seen")
	assert.Contains(t, out, "1 transaction(s) detected")

	out = mustExecute(t, nil, "sms", "import-backup", path)
	assert.Contains(t, out, "Processed 0 message(s), skipped 2 already seen")

	out = mustExecute(t, nil, "list")
	assert.Contains(t, out, "1 transaction(s)")
}

func TestMigrate(t *testing.T) {
	setupEnv(t)
	dir := t.TempDir()
	useDevice(t, "me@x.com", filepath.Join(dir, "nested"))

	out := mustExecute(t, nil, "migrate")
	assert.Contains(t, out, "Database is up to date")

	_, err := os.Stat(filepath.Join(dir, "nested", "expenses.db"))
	assert.NoError(t, err)
}

func TestInvalidConfiguration(t *testing.T) {
	setupEnv(t)
	useDevice(t, "me@x.com", t.TempDir())
	t.Setenv("EXPENSES_STORAGE_DRIVER", "postgres")

	_, err := execute(t, nil, "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown storage.driver "postgres"`)
}

func TestExportBigQueryRequiresProject(t *testing.T) {
	setupEnv(t)
	useDevice(t, "me@x.com", t.TempDir())

	_, err := execute(t, nil, "export-bigquery")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bigquery.project is required")
}
