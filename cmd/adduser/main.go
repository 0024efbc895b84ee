package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	database "github.com/sebuszqo/ClaritySpend/db"
	"github.com/sebuszqo/ClaritySpend/internal/user"
	"golang.org/x/term"
)

// openService connects the credential store. Tests replace it with an
// in-memory store.
var openService = func(ctx context.Context, connStr string, bcryptCost int) (user.Service, func() error, error) {
	dbService, err := database.NewDBService(ctx, connStr, zerolog.Nop())
	if err != nil {
		return nil, nil, err
	}
	return user.NewUserService(user.NewUserRepository(dbService.DB), bcryptCost, zerolog.Nop()), dbService.Close, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("user", "", "Username")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	connStr := fs.String("db", "", "Postgres connection string (defaults to DB_CONNECTION_STRING)")
	bcryptCost := fs.Int("bcrypt-cost", user.DefaultBcryptCost, "bcrypt cost")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if strings.TrimSpace(*username) == "" {
		fmt.Fprintln(stdout, "Usage: adduser -user <username> [-password <password>] [-db <connection string>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: user")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}

	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	if *connStr == "" {
		*connStr = os.Getenv("DB_CONNECTION_STRING")
	}
	if *connStr == "" {
		return fmt.Errorf("missing database connection string: pass -db or set DB_CONNECTION_STRING")
	}

	ctx := context.Background()
	service, closeStore, err := openService(ctx, *connStr, *bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeStore()

	created, err := service.Register(ctx, *username, password)
	if err != nil {
		if errors.Is(err, user.ErrUsernameTaken) {
			return fmt.Errorf("user %s already exists", strings.TrimSpace(*username))
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %d\n", created.Username, created.ID)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
