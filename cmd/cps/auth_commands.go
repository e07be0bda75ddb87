package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	authEmail    string
	authPassword string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and save the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient()
		if err != nil {
			return err
		}
		resp, err := c.Login(cmd.Context(), authEmail, authPassword)
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s (%s)\n", resp.User.Email, resp.User.Role)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and save the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient()
		if err != nil {
			return err
		}
		resp, err := c.Register(cmd.Context(), authEmail, authPassword)
		if err != nil {
			return err
		}
		fmt.Printf("Registered %s (%s)\n", resp.User.Email, resp.User.Role)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Validate the saved token and show the current user",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient()
		if err != nil {
			return err
		}
		user, err := c.Me(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s)\n", user.Email, user.Role)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Discard the saved session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := buildClient()
		if err != nil {
			return err
		}
		if err := c.Logout(); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{loginCmd, registerCmd} {
		cmd.Flags().StringVarP(&authEmail, "email", "e", "", "account email")
		cmd.Flags().StringVarP(&authPassword, "password", "p", "", "account password")
		_ = cmd.MarkFlagRequired("email")
		_ = cmd.MarkFlagRequired("password")
	}
}
