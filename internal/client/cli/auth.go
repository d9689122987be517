package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/accountctx/internal/common"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

// Register prompts for a user name and password and creates the user.
func (a *App) Register(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter user name", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	if err := a.authService.Register(ctx, userName, password); err != nil {
		return err
	}

	a.printf("Success!\n")
	return nil
}

// Login prompts for credentials and signs in. Any session of a previous
// login is forgotten.
func (a *App) Login(ctx context.Context) error {
	userName, err := getSimpleText(a.reader, "Enter user name", a.out)
	if err != nil {
		return err
	}

	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	if err := a.authService.Login(ctx, userName, password); err != nil {
		return err
	}

	a.userName, a.session = userName, nil
	a.printf("Signed in as %s\n", userName)
	return nil
}

// Logout deactivates the active account and forgets the login.
func (a *App) Logout(ctx context.Context) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	err := a.authService.Logout(ctx)
	a.userName, a.session = "", nil
	if err != nil {
		return fmt.Errorf("signed out locally, server logout failed: %w", err)
	}
	a.printf("Signed out\n")
	return nil
}
