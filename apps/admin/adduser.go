package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core"
	"github.com/webgimnasionuevainglaterra-afk/colegionueva-sub001/core/user"
)

var cliRoles = map[string]string{
	"admin":    user.RoleAdminOwner,
	"teacher":  user.RoleTeacher,
	"guardian": user.RoleGuardian,
	"student":  user.RoleStudent,
}

type newUserArgs struct {
	name, uname, email, role, nationalID, pwd string
}

// addUser updates or creates a user.User
func (cli *commandLine) addUser(args newUserArgs) error {
	ctx := context.Background()
	uname := core.CleanString(args.uname, true /* lower */)
	email := core.CleanString(args.email, true /* lower */)

	role, ok := cliRoles[args.role]
	if !ok {
		return fmt.Errorf("%q: unknown role", args.role)
	}
	if role == user.RoleGuardian && args.nationalID == "" {
		return errors.New("guardians need a national ID")
	}

	lookup := uname
	if lookup == "" {
		lookup = email
	}
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{UsernameOrEmail: lookup})
	exists := err == nil
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Username:  uname,
			Email:     email,
			CreatedAt: time.Now().UTC(),
		}
	}
	usr.Name = core.CleanString(args.name)
	usr.Roles = []string{role}
	if args.nationalID != "" {
		usr.NationalID = core.CleanString(args.nationalID)
	}
	usr.IsActive = true
	usr.UpdatedAt = time.Now().UTC()
	if err := usr.SetPassword(args.pwd); err != nil {
		return err
	}

	if exists {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
		return err
	}
	if err = cli.usrRepo.CheckUsernameUniqueness(ctx, usr.Username, usr.Email); err != nil {
		return err
	}
	_, err = cli.usrRepo.CreateUser(ctx, usr)
	return err
}
