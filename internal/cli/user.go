package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/robertlestak/imapauth/internal/auth"
	log "github.com/sirupsen/logrus"
)

func splitGroups(s string) []string {
	var groups []string
	for _, g := range strings.Split(s, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}

// userFlags are shared by the user subcommands.
type userFlags struct {
	fs      *flag.FlagSet
	cfgPath *string
	user    *string
	output  *string
}

func newUserFlags(name string) *userFlags {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &userFlags{
		fs:      fs,
		cfgPath: fs.String("config", os.Getenv("IMAPAUTH_CONFIG"), "path to config file"),
		user:    fs.String("user", "", "user name"),
		output:  fs.String("output", "json", "output format"),
	}
}

// cliNotifier prints backend messages to stderr.
var cliNotifier = auth.NotifierFunc(func(lv auth.Level, msg string) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", lv, msg)
})

func cmdUserGet() error {
	f := newUserFlags("get")
	f.fs.Parse(os.Args[3:])
	if *f.user == "" {
		return errors.New("user is required")
	}
	b, _, err := loadBackend(*f.cfgPath)
	if err != nil {
		return err
	}
	p, _ := b.GetUserData(*f.user)
	return outputData(p, *f.output, "-")
}

func cmdUserAdd() error {
	f := newUserFlags("add")
	pass := f.fs.String("pass", os.Getenv("IMAPAUTH_PASSWORD"), "password")
	name := f.fs.String("name", "", "full name, derived from the user name when empty")
	mail := f.fs.String("mail", "", "e-mail address, user@domain when empty")
	groups := f.fs.String("groups", "", "comma separated groups")
	f.fs.Parse(os.Args[3:])
	b, _, err := loadBackend(*f.cfgPath)
	if err != nil {
		return err
	}
	if !b.WithNotifier(cliNotifier).CreateUser(*f.user, *pass, *name, *mail, splitGroups(*groups)) {
		return errors.New("user not created")
	}
	return nil
}

func cmdUserMod() error {
	f := newUserFlags("mod")
	newName := f.fs.String("newuser", "", "new login name")
	pass := f.fs.String("pass", "", "new password")
	name := f.fs.String("name", "", "new full name")
	mail := f.fs.String("mail", "", "new e-mail address")
	groups := f.fs.String("groups", "", "new comma separated groups")
	f.fs.Parse(os.Args[3:])
	var ch auth.Changes
	// only flags given on the command line change anything
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "newuser":
			ch.User = newName
		case "pass":
			ch.Pass = pass
		case "name":
			ch.Name = name
		case "mail":
			ch.Mail = mail
		case "groups":
			g := splitGroups(*groups)
			ch.Groups = &g
		}
	})
	b, _, err := loadBackend(*f.cfgPath)
	if err != nil {
		return err
	}
	if !b.WithNotifier(cliNotifier).ModifyUser(*f.user, ch) {
		return errors.New("user not modified")
	}
	return nil
}

func cmdUserDel() error {
	f := newUserFlags("del")
	f.fs.Parse(os.Args[3:])
	users := append([]string{}, f.fs.Args()...)
	if *f.user != "" {
		users = append(users, *f.user)
	}
	if len(users) == 0 {
		return errors.New("user is required")
	}
	b, _, err := loadBackend(*f.cfgPath)
	if err != nil {
		return err
	}
	n := b.DeleteUsers(users...)
	return outputData(map[string]int{"deleted": n}, *f.output, "-")
}

func filterFlags(fs *flag.FlagSet) func() auth.Filter {
	name := fs.String("name", "", "filter by name")
	mail := fs.String("mail", "", "filter by e-mail")
	groups := fs.String("grps", "", "filter by group")
	return func() auth.Filter {
		return auth.Filter{"name": *name, "mail": *mail, "grps": *groups}
	}
}

func cmdUserList() error {
	f := newUserFlags("list")
	start := f.fs.Int("start", 0, "skip this many users")
	limit := f.fs.Int("limit", 0, "list at most this many users, 0 for all")
	filter := filterFlags(f.fs)
	f.fs.Parse(os.Args[3:])
	b, _, err := loadBackend(*f.cfgPath)
	if err != nil {
		return err
	}
	if !b.CanDo(auth.CanGetUsers) {
		return errors.New("backend cannot list users")
	}
	flt := filter()
	flt["user"] = *f.user
	return outputData(b.RetrieveUsers(*start, *limit, flt), *f.output, "-")
}

func cmdUserCount() error {
	f := newUserFlags("count")
	filter := filterFlags(f.fs)
	f.fs.Parse(os.Args[3:])
	b, _, err := loadBackend(*f.cfgPath)
	if err != nil {
		return err
	}
	if !b.CanDo(auth.CanGetUserCount) {
		return errors.New("backend cannot count users")
	}
	flt := filter()
	flt["user"] = *f.user
	return outputData(map[string]int{"count": b.UserCount(flt)}, *f.output, "-")
}

func cmdUser() error {
	l := log.WithFields(log.Fields{
		"app": "cli",
		"fn":  "cmdUser",
	})
	l.Debug("starting")
	var arg string
	if len(os.Args) > 2 {
		arg = os.Args[2]
	}
	switch arg {
	case "get":
		return cmdUserGet()
	case "add":
		return cmdUserAdd()
	case "mod":
		return cmdUserMod()
	case "del":
		return cmdUserDel()
	case "list":
		return cmdUserList()
	case "count":
		return cmdUserCount()
	default:
		return fmt.Errorf("%w: user %q", ErrUsage, arg)
	}
}
