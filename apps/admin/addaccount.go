package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/account"
)

// addAccount updates or creates an account.Account
func (cli *commandLine) addAccount(name, email, role, pwd string) error {
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)
	role = core.CleanString(role, true /* lower */)

	var validRole bool
	for _, r := range account.AllRoles {
		if role == r {
			validRole = true
			break
		}
	}
	if !validRole {
		return fmt.Errorf("unknown role %q", role)
	}

	acct, err := cli.acctRepo.GetAccount(ctx, account.GetFilter{Email: email})
	if err != nil {
		if errors.Cause(err) != account.ErrNotFound {
			return err
		}
		now := time.Now().UTC()
		acct = account.Account{
			Name:      name,
			Email:     email,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	acct.Name = name
	acct.Role = role
	acct.IsActive = true
	if err := acct.SetPassword(pwd); err != nil {
		return err
	}

	if acct.ID == "" {
		_, err = cli.acctRepo.CreateAccount(ctx, acct)
	} else {
		_, err = cli.acctRepo.UpdateAccount(ctx, acct)
	}
	return err
}
