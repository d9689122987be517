package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/accountctx/internal/common"
	"github.com/dmitrijs2005/accountctx/internal/server/api"
)

var confirm = Confirm

// Accounts lists the user's accounts by name. Arguments, if any, filter by
// name or description. The active account is marked with "*".
func (a *App) Accounts(ctx context.Context, args []string) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	req := &api.ListAccountsRequest{SortBy: "name", Order: "asc"}
	if q := strings.Join(args, " "); q != "" {
		req.Filter = &api.AccountFilter{Query: q}
	}
	accounts, err := a.api.ListAccounts(ctx, req)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		a.printf("No accounts\n")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\tID\tNAME\tPROTECTED\tDESCRIPTION")
	for _, acc := range accounts {
		mark := ""
		if a.session != nil && a.session.AccountID == acc.ID {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", mark, acc.ID, acc.Name, acc.Protected, acc.Description)
	}
	return w.Flush()
}

// Create prompts for a name and description and creates an account.
func (a *App) Create(ctx context.Context) error {
	name, err := getSimpleText(a.reader, "Account name", a.out)
	if err != nil {
		return err
	}
	description, err := getSimpleText(a.reader, "Description (optional)", a.out)
	if err != nil {
		return err
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	acc, err := a.api.CreateAccount(ctx, &api.CreateAccountRequest{Name: name, Description: description})
	if err != nil {
		return err
	}
	a.printf("Created account %s (%s)\n", acc.Name, acc.ID)
	return nil
}

// Switch makes the named account active. A protected account is unlocked
// with the user's password first.
func (a *App) Switch(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: switch <account id>")
	}
	accountID := args[0]

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	resp, err := a.authService.Switch(ctx, accountID, "")
	if errors.Is(err, common.ErrorForbidden) {
		a.printf("Account is protected\n")
		var token string
		if token, err = a.unlock(ctx, accountID); err != nil {
			return err
		}
		resp, err = a.authService.Switch(ctx, accountID, token)
	}
	if err != nil {
		return err
	}

	a.session = &api.SessionResponse{
		SessionID:     resp.SessionID,
		AccountID:     resp.AccountID,
		Namespace:     resp.Namespace,
		ProxyConfigID: resp.ProxyConfigID,
	}
	a.printf("Switched to %s\n", resp.AccountID)
	return nil
}

func (a *App) unlock(ctx context.Context, accountID string) (string, error) {
	password, err := getPassword(a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(password)

	verifier, err := a.authService.Verifier(ctx, password)
	if err != nil {
		return "", err
	}
	return a.api.UnlockAccount(ctx, accountID, verifier)
}

// Delete removes an account and everything stored for it after the user
// confirms.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: delete <account id>")
	}
	accountID := args[0]

	ok, err := confirm(a.reader, fmt.Sprintf("Delete account %s and all its data?", accountID), a.out)
	if err != nil {
		return err
	}
	if !ok {
		a.printf("Cancelled\n")
		return nil
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	if err := a.api.DeleteAccount(ctx, accountID); err != nil {
		return err
	}
	if a.session != nil && a.session.AccountID == accountID {
		a.session = nil
	}
	a.printf("Deleted\n")
	return nil
}

// Session shows the live session, refreshing its expiry on the server.
func (a *App) Session(ctx context.Context) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()

	sess, err := a.api.CurrentSession(ctx)
	if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrorValidation) {
		a.session = nil
		a.printf("No active account\n")
		return nil
	}
	if err != nil {
		return err
	}

	a.session = sess
	a.printf("Session %s\n  account:   %s\n  namespace: %s\n  expires:   %s\n",
		sess.SessionID, sess.AccountID, sess.Namespace, sess.ExpiresAt.Format("2006-01-02 15:04:05"))
	if sess.ProxyConfigID != nil {
		a.printf("  proxy:     %s\n", *sess.ProxyConfigID)
	}
	return nil
}
