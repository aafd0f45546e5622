package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/and161185/accountd/internal/config"
	"github.com/and161185/accountd/internal/crypto"
	"github.com/and161185/accountd/internal/ident"
)

func runCmd(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, env{stdout: &stdout, stderr: &stderr})
	return code, stdout.String(), stderr.String()
}

func Test_run_UsageAndUnknown(t *testing.T) {
	if code, _, stderr := runCmd(t); code != 2 || !strings.Contains(stderr, "Commands:") {
		t.Fatalf("no args: code=%d stderr=%q", code, stderr)
	}
	if code, _, _ := runCmd(t, "frobnicate"); code != 2 {
		t.Fatalf("unknown command: code=%d", code)
	}
	if code, out, _ := runCmd(t, "version"); code != 0 || !strings.HasPrefix(out, "accountctl dev") {
		t.Fatalf("version: code=%d out=%q", code, out)
	}
}

func Test_hash(t *testing.T) {
	code, out, _ := runCmd(t, "hash", "-p", "test1234", "-pid", "1000000001")
	if code != 0 {
		t.Fatalf("code=%d", code)
	}
	if got := strings.TrimSpace(out); got != "f8e9ee3a37bfe550473d4cc925ee61d4e2cddea1b27209b965d9cdc054dda87b" {
		t.Fatalf("digest=%q", got)
	}

	code, out, _ = runCmd(t, "hash", "-p", "test1234", "-pid", "1000000001", "-seal")
	if code != 0 || !crypto.CheckPassword(strings.TrimSpace(out), "test1234", 1000000001) {
		t.Fatalf("sealed hash does not verify: %q", out)
	}

	if code, _, _ := runCmd(t, "hash", "-p", "x", "-pid", "4294967296"); code != 1 {
		t.Fatalf("pid overflow must fail, code=%d", code)
	}
	if _, _, stderr := runCmd(t, "hash", "-p", "pässword", "-pid", "1"); !strings.Contains(stderr, "non-ASCII") {
		t.Fatalf("want non-ASCII warning, got %q", stderr)
	}
}

func Test_generators(t *testing.T) {
	code, out, _ := runCmd(t, "pid", "-n", "3")
	lines := strings.Fields(out)
	if code != 0 || len(lines) != 3 {
		t.Fatalf("pid: code=%d out=%q", code, out)
	}
	for _, l := range lines {
		v, err := strconv.ParseUint(l, 10, 32)
		if err != nil || uint32(v) < ident.MinPID {
			t.Fatalf("bad pid %q", l)
		}
	}

	code, out, _ = runCmd(t, "code", "-len", "8")
	if code != 0 || len(strings.TrimSpace(out)) != 8 {
		t.Fatalf("code: %d %q", code, out)
	}
	if code, _, _ := runCmd(t, "code", "-len", "0"); code != 1 {
		t.Fatalf("zero length must fail")
	}

	code, out, _ = runCmd(t, "nexpass", "-n", "2")
	lines = strings.Fields(out)
	if code != 0 || len(lines) != 2 || len(lines[0]) != ident.NEXPasswordLen {
		t.Fatalf("nexpass: %d %q", code, out)
	}
	if code, _, _ := runCmd(t, "nexpass", "-n", "0"); code != 1 {
		t.Fatalf("n=0 must fail")
	}
}

func Test_token(t *testing.T) {
	t.Chdir(t.TempDir())

	code, out, _ := runCmd(t, "token", "-legacy", "-class", "access", "-payload", `{"type":"access","pid":1000000001}`)
	if code != 0 || strings.TrimSpace(out) != "ef5262d345c09c2a27207c64d9446487" {
		t.Fatalf("legacy token: %d %q", code, out)
	}

	if code, _, _ := runCmd(t, "token", "-payload", `{"pid":1}`); code != 1 {
		t.Fatalf("keyed mode without secret must fail")
	}

	t.Setenv("ACCOUNTD_TOKENS_SECRET", strings.Repeat("k", 32))
	code, out, _ = runCmd(t, "token", "-payload", `{"pid":1}`)
	if code != 0 {
		t.Fatalf("grant: code=%d", code)
	}
	var g map[string]string
	if err := json.Unmarshal([]byte(out), &g); err != nil {
		t.Fatalf("grant output: %v", err)
	}
	if len(g["access_token"]) != 64 || g["access_token"] == g["refresh_token"] {
		t.Fatalf("keyed grant must be domain separated: %v", g)
	}

	if code, _, _ := runCmd(t, "token", "-legacy", "-payload", `not json`); code != 1 {
		t.Fatalf("bad payload must fail")
	}
	if code, _, _ := runCmd(t, "token", "-legacy", "-class", "id", "-payload", `{}`); code != 1 {
		t.Fatalf("unknown class must fail")
	}
}

func Test_token_ConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	secret := strings.Repeat("s", 32)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("tokens:\n  legacy: true\n  secret: "+secret+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	payload := `{"type":"access","pid":1000000001}`

	code, out, _ := runCmd(t, "token", "-class", "access", "-payload", payload)
	if code != 0 || strings.TrimSpace(out) != "ef5262d345c09c2a27207c64d9446487" {
		t.Fatalf("tokens.legacy from config: %d %q", code, out)
	}

	code, fromFile, _ := runCmd(t, "token", "-legacy=false", "-class", "access", "-payload", payload)
	if code != 0 || len(strings.TrimSpace(fromFile)) != 64 {
		t.Fatalf("-legacy=false must select keyed mode: %d %q", code, fromFile)
	}
	code, fromFlag, _ := runCmd(t, "token", "-legacy=false", "-secret", secret, "-class", "access", "-payload", payload)
	if code != 0 || fromFile != fromFlag {
		t.Fatalf("tokens.secret from config must match -secret: %q vs %q", fromFile, fromFlag)
	}

	other := filepath.Join(t.TempDir(), "short.yaml")
	if err := os.WriteFile(other, []byte("tokens:\n  secret: short\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if code, _, stderr := runCmd(t, "token", "-config", other, "-payload", payload); code != 1 || !strings.Contains(stderr, "too short") {
		t.Fatalf("short configured secret must fail: %d %q", code, stderr)
	}
}

func Test_newGuard(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ACCOUNTD_GENERATION_MAXATTEMPTS", "7")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := newGuard(cfg).MaxAttempts(); got != 7 {
		t.Fatalf("MaxAttempts = %d, want 7", got)
	}
}

func Test_registerAndVerify(t *testing.T) {
	t.Chdir(t.TempDir())
	db := filepath.Join(t.TempDir(), "accounts.db")

	code, out, stderr := runCmd(t, "register", "-db", db, "-u", "Alice", "-p", "test1234", "-e", "alice@example.com")
	if code != 0 {
		t.Fatalf("register: %d %s", code, stderr)
	}
	var reg map[string]any
	if err := json.Unmarshal([]byte(out), &reg); err != nil {
		t.Fatalf("register output %q err=%v", out, err)
	}
	pid, _ := reg["pid"].(float64)
	if uint32(pid) < ident.MinPID || reg["username"] != "Alice" {
		t.Fatalf("register output %q", out)
	}
	if _, ok := reg["nex_password"]; ok {
		t.Fatalf("register must not print credentials it does not store: %q", out)
	}

	if code, _, _ := runCmd(t, "register", "-db", db, "-u", "john doe", "-p", "pw"); code != 1 {
		t.Fatalf("username with a space must fail")
	}

	if code, _, _ := runCmd(t, "register", "-db", db, "-u", "alice", "-p", "other"); code != 1 {
		t.Fatalf("duplicate username must fail")
	}

	basic := base64.StdEncoding.EncodeToString([]byte("alice test1234"))
	code, out, _ = runCmd(t, "verify", "-db", db, "-basic", basic, "-e", "alice@example.com")
	if code != 0 || !strings.Contains(out, strconv.FormatUint(uint64(pid), 10)) {
		t.Fatalf("verify: %d %q", code, out)
	}

	wrong := base64.StdEncoding.EncodeToString([]byte("alice nope"))
	if code, _, stderr := runCmd(t, "verify", "-db", db, "-basic", wrong); code != 1 || !strings.Contains(stderr, "rejected") {
		t.Fatalf("wrong password: %d %q", code, stderr)
	}
	if code, _, _ := runCmd(t, "verify", "-basic", basic); code != 1 {
		t.Fatalf("missing -db must fail")
	}
}
