// profilectl reads and updates a basic profile through the profile API,
// using a local secp256k1 key as the wallet.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"ceramicprofile/api/internal/wallet"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(argv []string, stdout, stderr io.Writer) error {
	var (
		server  string
		keyHex  string
		chainID int64
		limit   int
		timeout time.Duration
	)

	flagSet := pflag.NewFlagSet("profilectl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&server, "server", envOr("PROFILECTL_SERVER", "http://localhost:8787"), "profile API base URL")
	flagSet.StringVar(&keyHex, "key", os.Getenv("PROFILECTL_KEY"), "hex private key of the wallet (generated when empty)")
	flagSet.Int64Var(&chainID, "chain-id", 5, "chain id the wallet reports")
	flagSet.IntVar(&limit, "limit", 20, "history entries to show")
	flagSet.DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")
	flagSet.String("name", "", "profile name (update)")
	flagSet.String("description", "", "profile description (update)")
	flagSet.String("gender", "", "profile gender: Male, Female or empty (update)")
	flagSet.String("location", "", "profile home location (update)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			printHelp(stderr, flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(stderr, flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) != 1 {
		printHelp(stderr, flagSet)
		return fmt.Errorf("expected exactly one command, got %d", len(args))
	}
	command := args[0]
	if command != "show" && command != "update" && command != "history" {
		return fmt.Errorf("unknown command %q", command)
	}

	signer, err := loadSigner(keyHex, stderr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c := newClient(server, signer, func(n notification) {
		fmt.Fprintf(stderr, "[%s] %s\n", n.Kind, n.Message)
	})
	conn, err := c.connect(ctx, chainID)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.disconnect(context.Background()); err != nil {
			fmt.Fprintf(stderr, "disconnect: %v\n", err)
		}
	}()
	fmt.Fprintf(stdout, "Your 3ID is %s\n", conn.ID)

	switch command {
	case "show":
		view, err := c.profile(ctx)
		if err != nil {
			return err
		}
		printProfile(stdout, view)
	case "update":
		fields := map[string]string{}
		for _, name := range []string{"name", "description", "gender", "location"} {
			if flagSet.Changed(name) {
				value, _ := flagSet.GetString(name)
				fields[name] = value
			}
		}
		if len(fields) > 0 {
			if _, err := c.editForm(ctx, fields); err != nil {
				return err
			}
		}
		view, err := c.update(ctx)
		if err != nil {
			return err
		}
		printProfile(stdout, view)
	case "history":
		commits, err := c.history(ctx, limit)
		if err != nil {
			return err
		}
		for _, item := range commits {
			fmt.Fprintf(stdout, "%s  %s  %s\n", shortVersion(item.Version), item.Timestamp.Format(time.RFC3339), item.Message)
		}
	}
	return nil
}

func loadSigner(keyHex string, stderr io.Writer) (*wallet.KeySigner, error) {
	if strings.TrimSpace(keyHex) != "" {
		return wallet.NewKeySigner(keyHex)
	}
	signer, err := wallet.GenerateKeySigner()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(stderr, "generated wallet %s (reuse with --key %s)\n", signer.Address(), signer.PrivateKeyHex())
	return signer, nil
}

func printProfile(w io.Writer, view profileView) {
	fmt.Fprintln(w, view.Message)
	fmt.Fprintf(w, "  name:        %s\n", view.Form.Name)
	fmt.Fprintf(w, "  description: %s\n", view.Form.Description)
	fmt.Fprintf(w, "  gender:      %s\n", view.Form.Gender)
	fmt.Fprintf(w, "  location:    %s\n", view.Form.Location)
}

func shortVersion(version string) string {
	if len(version) > 7 {
		return version[:7]
	}
	return version
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `profilectl reads and updates your basic profile.

Usage:
  profilectl [flags] show
  profilectl [flags] update [--name N] [--description D] [--gender G] [--location L]
  profilectl [flags] history

Flags:
`)
	flagSet.PrintDefaults()
}
