package cmd

import (
	"bufio"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jmcleod/pantrypal/api"
)

func newLoginCmd(a *app) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := bufio.NewReader(a.in)
			var err error
			if username == "" {
				if username, err = a.prompt(r, "Username: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = a.prompt(r, "Password: "); err != nil {
					return err
				}
			}

			u, err := a.api.Auth.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			return a.render(u, func(w io.Writer) {
				fmt.Fprintf(w, "Signed in as %s <%s>\n", u.Username, u.Email)
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted if omitted)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted if omitted)")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.api.Auth.Logout()
			fmt.Fprintln(a.out, "Signed out.")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	var cached bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			var u api.User
			if st := a.store.State(); cached && st.User != nil {
				u = *st.User
			} else {
				var err error
				if u, err = a.api.Auth.Me(cmd.Context()); err != nil {
					return err
				}
			}
			return a.render(u, func(w io.Writer) {
				fmt.Fprintf(w, "ID:\t%d\n", u.ID)
				fmt.Fprintf(w, "Username:\t%s\n", u.Username)
				fmt.Fprintf(w, "Email:\t%s\n", u.Email)
			})
		},
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "Print the saved profile without calling the API")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var username, email, password string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := bufio.NewReader(a.in)
			var err error
			for _, f := range []struct {
				dst   *string
				label string
			}{
				{&username, "Username: "},
				{&email, "Email: "},
				{&password, "Password: "},
			} {
				if *f.dst != "" {
					continue
				}
				if *f.dst, err = a.prompt(r, f.label); err != nil {
					return err
				}
			}

			u, err := a.api.Auth.Register(cmd.Context(), username, email, password)
			if err != nil {
				return err
			}
			return a.render(u, func(w io.Writer) {
				fmt.Fprintf(w, "Registered %s. Run \"pantrypal login\" to sign in.\n", u.Username)
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Username (prompted if omitted)")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email (prompted if omitted)")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prompted if omitted)")
	return cmd
}
