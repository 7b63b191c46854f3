// Command client is a small CLI for the FileVault server: register or log in
// to obtain a token, then upload and download files.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"syscall"

	"golang.org/x/term"

	"github.com/smartctf/filevault/internal/client"
)

const usage = `usage: client [-s server] [-t token] <command> [args]

commands:
  register <username>        create an account, print the access token
  login <username>           obtain an access token
  upload <path>              upload a file (token required)
  download <file-id> [dest]  download a file (token required)
  health                     check whether the server is up

the token may also be supplied via the FILEVAULT_TOKEN environment variable
`

func main() {
	serverURL := flag.String("s", "http://localhost:8080", "server base URL")
	token := flag.String("t", os.Getenv("FILEVAULT_TOKEN"), "access token")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	c := client.New(*serverURL)
	c.SetToken(*token)
	ctx := context.Background()

	var err error
	switch args[0] {
	case "register":
		err = runAuth(ctx, c.Register, args[1:])
	case "login":
		err = runAuth(ctx, c.Login, args[1:])
	case "upload":
		err = runUpload(ctx, c, args[1:])
	case "download":
		err = runDownload(ctx, c, args[1:])
	case "health":
		if !c.Healthy(ctx) {
			err = fmt.Errorf("server at %s is not healthy", *serverURL)
		} else {
			fmt.Println("ok")
		}
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type authFunc func(ctx context.Context, username, password string) (string, error)

func runAuth(ctx context.Context, fn authFunc, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one argument: <username>")
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	token, err := fn(ctx, args[0], password)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}

func promptPassword() (string, error) {
	fmt.Fprint(os.Stderr, "password: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func runUpload(ctx context.Context, c *client.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one argument: <path>")
	}

	info, err := c.Upload(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("file id:  %d\n", info.FileID)
	fmt.Printf("sha256:   %s\n", info.SHA256)
	fmt.Printf("size:     %d bytes\n", info.SizeBytes)
	if info.Dedup {
		fmt.Println("content already existed on the server; no new bytes stored")
	}
	return nil
}

func runDownload(ctx context.Context, c *client.Client, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("expected arguments: <file-id> [dest]")
	}

	fileID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid file id %q", args[0])
	}

	if len(args) == 2 {
		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		name, err := c.Download(ctx, fileID, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "saved %s to %s\n", name, args[1])
		return nil
	}

	_, err = c.Download(ctx, fileID, os.Stdout)
	return err
}
