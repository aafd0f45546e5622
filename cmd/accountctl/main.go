// Command accountctl is an operator tool for the account identity core: it derives
// legacy password hashes, draws identifiers and tokens, and registers or verifies
// accounts against a local SQLite store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

type env struct {
	stdout io.Writer
	stderr io.Writer
}

func usage(w io.Writer) {
	fmt.Fprint(w, `accountctl
Usage:
  accountctl <cmd> [args]

Commands:
  version
  hash      -p <password> -pid <pid> [-seal]
  pid       [-n <count>]
  code      [-len <length>] [-n <count>]
  nexpass   [-n <count>]
  token     -payload <json> [-class access|refresh|grant] [-legacy] [-secret <s>] [-config <file>]
  register  -db <path> -u <username> -p <password> [-e <email>] [-config <file>]
  verify    -db <path> -basic <base64> [-e <email>] [-config <file>]

token, register and verify read tokens.* and generation.* from ACCOUNTD_* variables
or the config file.
`)
}

// main dispatches subcommands.
func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	code := run(ctx, os.Args[1:], env{stdout: os.Stdout, stderr: os.Stderr})
	cancel()
	os.Exit(code)
}

// run executes one subcommand and returns the process exit code.
func run(ctx context.Context, args []string, e env) int {
	if len(args) < 1 {
		usage(e.stderr)
		return 2
	}

	var err error
	switch args[0] {
	case "version":
		fmt.Fprintf(e.stdout, "accountctl %s (%s)\n", version, buildDate)
	case "hash":
		err = cmdHash(args[1:], e)
	case "pid":
		err = cmdPID(args[1:], e)
	case "code":
		err = cmdCode(args[1:], e)
	case "nexpass":
		err = cmdNEXPass(args[1:], e)
	case "token":
		err = cmdToken(args[1:], e)
	case "register":
		err = cmdRegister(ctx, args[1:], e)
	case "verify":
		err = cmdVerify(ctx, args[1:], e)
	case "help", "-h", "--help":
		usage(e.stdout)
	default:
		fmt.Fprintf(e.stderr, "unknown command %q\n", args[0])
		usage(e.stderr)
		return 2
	}

	if err != nil {
		fmt.Fprintln(e.stderr, "error:", err)
		return 1
	}
	return 0
}

func newFlagSet(name string, e env) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
