package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/accountctx/internal/server/api"
)

var errNoActiveAccount = errors.New("no active account, use 'switch <id>' first")

func (a *App) namespace() (string, error) {
	if a.session == nil {
		return "", errNoActiveAccount
	}
	return a.session.Namespace, nil
}

// Put stores a value under kind/key in the active account.
func (a *App) Put(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return errors.New("usage: put <kind> <key> <value>")
	}
	ns, err := a.namespace()
	if err != nil {
		return err
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	return a.api.StoragePut(ctx, &api.StoragePutRequest{
		Namespace: ns,
		Kind:      args[0],
		Key:       args[1],
		Value:     []byte(strings.Join(args[2:], " ")),
	})
}

// Get prints every live entry of one kind in the active account.
func (a *App) Get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: get <kind>")
	}
	ns, err := a.namespace()
	if err != nil {
		return err
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	entries, err := a.api.StorageGetAll(ctx, ns, args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		a.printf("No %s entries\n", args[0])
		return nil
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s = %s", e.Key, e.Value)
		if e.SessionScoped {
			line += " (session)"
		}
		a.printf("%s\n", line)
	}
	return nil
}

// Clear removes the given kinds, or all kinds, from the active account.
func (a *App) Clear(ctx context.Context, args []string) error {
	ns, err := a.namespace()
	if err != nil {
		return err
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	if err := a.api.StorageClear(ctx, ns, args...); err != nil {
		return err
	}
	a.printf("Cleared\n")
	return nil
}
