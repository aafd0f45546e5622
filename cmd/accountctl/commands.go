package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strconv"

	"github.com/and161185/accountd/internal/config"
	"github.com/and161185/accountd/internal/crypto"
	"github.com/and161185/accountd/internal/ident"
	"github.com/and161185/accountd/internal/repository/sqlite"
	"github.com/and161185/accountd/internal/service"
	"github.com/and161185/accountd/internal/token"
	"github.com/and161185/accountd/internal/unique"
)

func cmdHash(args []string, e env) error {
	fs := newFlagSet("hash", e)
	p := fs.String("p", "", "password")
	pidStr := fs.String("pid", "", "principal id")
	seal := fs.Bool("seal", false, "print the stored bcrypt form instead of the digest")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pid, err := strconv.ParseUint(*pidStr, 10, 32)
	if err != nil {
		return fmt.Errorf("need -pid as an unsigned 32-bit integer: %w", err)
	}
	if !crypto.IsASCII(*p) {
		fmt.Fprintln(e.stderr, "warning: non-ASCII password bytes are narrowed to 7 bits")
	}

	if *seal {
		h, err := crypto.SealPassword(*p, uint32(pid))
		if err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, h)
		return nil
	}
	fmt.Fprintln(e.stdout, crypto.LegacyHash(*p, uint32(pid)))
	return nil
}

func repeat(n int, e env, gen func() (string, error)) error {
	if n <= 0 {
		return errors.New("need -n > 0")
	}
	for i := 0; i < n; i++ {
		v, err := gen()
		if err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, v)
	}
	return nil
}

func cmdPID(args []string, e env) error {
	fs := newFlagSet("pid", e)
	n := fs.Int("n", 1, "how many")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return repeat(*n, e, func() (string, error) {
		pid, err := ident.RandomPID()
		return strconv.FormatUint(uint64(pid), 10), err
	})
}

func cmdCode(args []string, e env) error {
	fs := newFlagSet("code", e)
	length := fs.Int("len", ident.EmailCodeLen, "code length")
	n := fs.Int("n", 1, "how many")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return repeat(*n, e, func() (string, error) { return ident.RandomCode(*length) })
}

func cmdNEXPass(args []string, e env) error {
	fs := newFlagSet("nexpass", e)
	n := fs.Int("n", 1, "how many")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return repeat(*n, e, ident.RandomNEXPassword)
}

func cmdToken(args []string, e env) error {
	fs := newFlagSet("token", e)
	cfgFile := configFlag(fs)
	payload := fs.String("payload", "", "payload as JSON")
	class := fs.String("class", "grant", "access, refresh or grant")
	legacy := fs.Bool("legacy", false, "legacy MD5 derivation (default tokens.legacy)")
	secret := fs.String("secret", "", "keyed mode secret (default tokens.secret)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal([]byte(*payload), &v); err != nil {
		return fmt.Errorf("need -payload as JSON: %w", err)
	}

	useLegacy := cfg.Tokens.Legacy
	if isSet(fs, "legacy") {
		useLegacy = *legacy
	}
	mode := token.ModeKeyed
	if useLegacy {
		mode = token.ModeLegacy
	}
	key := *secret
	if key == "" {
		key = cfg.Tokens.Secret
	}
	iss, err := token.NewIssuer(mode, []byte(key))
	if err != nil {
		return err
	}

	switch *class {
	case "grant":
		g, err := iss.Grant(v)
		if err != nil {
			return err
		}
		printJSON(e.stdout, map[string]string{"access_token": g.AccessToken, "refresh_token": g.RefreshToken})
	case string(token.Access), string(token.Refresh):
		t, err := iss.Derive(token.Class(*class), v)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.stdout, t)
	default:
		return fmt.Errorf("unknown -class %q", *class)
	}
	return nil
}

func configFlag(fs *flag.FlagSet) *string {
	return fs.String("config", "", "config file (yaml, json or toml)")
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func newGuard(cfg config.Config) *unique.Guard {
	return unique.New(unique.WithMaxAttempts(cfg.Generation.MaxAttempts))
}

// openAuth opens the SQLite identity store at path and wraps it in the auth service.
func openAuth(ctx context.Context, path string, cfg config.Config) (*service.AuthServiceImpl, func(), error) {
	if path == "" {
		return nil, nil, errors.New("need -db")
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, nil, err
	}
	repo := sqlite.NewIdentityRepository(db)
	if err := repo.Init(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return service.NewAuthService(repo, newGuard(cfg)), func() { _ = db.Close() }, nil
}

func cmdRegister(ctx context.Context, args []string, e env) error {
	fs := newFlagSet("register", e)
	cfgFile := configFlag(fs)
	dbPath := fs.String("db", "", "sqlite database path")
	u := fs.String("u", "", "username")
	p := fs.String("p", "", "password")
	email := fs.String("e", "", "email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return err
	}

	auth, closeDB, err := openAuth(ctx, *dbPath, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	id, err := auth.Register(ctx, service.RegisterInput{Username: *u, Email: *email, Password: *p})
	if err != nil {
		return err
	}
	printJSON(e.stdout, map[string]any{
		"pid":      id.PID,
		"username": id.Username,
		"email":    id.Email,
	})
	return nil
}

func cmdVerify(ctx context.Context, args []string, e env) error {
	fs := newFlagSet("verify", e)
	cfgFile := configFlag(fs)
	dbPath := fs.String("db", "", "sqlite database path")
	basic := fs.String("basic", "", "base64 of \"username password\"")
	email := fs.String("e", "", "expected email (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return err
	}

	auth, closeDB, err := openAuth(ctx, *dbPath, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	var expected *string
	if *email != "" {
		expected = email
	}
	id, err := auth.VerifyBasic(ctx, *basic, expected)
	if err != nil {
		return err
	}
	if id == nil {
		return errors.New("rejected")
	}
	printJSON(e.stdout, map[string]any{"pid": id.PID, "username": id.Username})
	return nil
}
