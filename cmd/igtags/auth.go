package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"igtags/pkg/auth"
	"igtags/pkg/ui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Instagram credentials",
	Long: `Manage the Instagram login used by the comment phase.

Credentials are stored in the system keychain when one is available and in
an encrypted file otherwise. INSTAGRAM_LOGIN and INSTAGRAM_PASSWORD are read
from the environment as a last resort.`,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(
		&cobra.Command{
			Use:   "login [username]",
			Short: "Store Instagram credentials",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runLogin,
		},
		&cobra.Command{
			Use:   "logout [username]",
			Short: "Remove stored credentials",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runLogout,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List stored accounts",
			Args:  cobra.NoArgs,
			RunE:  runList,
		},
	)
}

func credentialManager() (*auth.Manager, error) {
	dir, err := auth.DefaultConfigDir()
	if err != nil {
		return nil, fmt.Errorf("locate config directory: %w", err)
	}
	m, err := auth.NewManager(dir)
	if err != nil {
		return nil, fmt.Errorf("initialize credential manager: %w", err)
	}
	return m, nil
}

// prompt prints label and returns the trimmed line typed back.
func prompt(r *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := r.ReadString('\n')
	return strings.TrimSpace(line)
}

func runLogin(cmd *cobra.Command, args []string) error {
	manager, err := credentialManager()
	if err != nil {
		return err
	}
	in := bufio.NewReader(os.Stdin)

	username := ""
	if len(args) == 1 {
		username = strings.TrimSpace(args[0])
	} else {
		username = strings.TrimPrefix(prompt(in, "Instagram username: "), "@")
	}
	if username == "" {
		return errors.New("username cannot be empty")
	}

	fmt.Print("Password: ")
	password, err := readPassword(in)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	if err := manager.Store(&auth.Account{Username: username, Password: password}); err != nil {
		return err
	}

	ui.PrintSuccess("Account saved: " + username)
	where := "encrypted file"
	if auth.IsKeyringAvailable() {
		where = "system keychain"
	}
	ui.PrintInfo("Stored in", where)
	fmt.Println("\nCollect comments with:\n  igtags run --comments")
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	manager, err := credentialManager()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		return removeAccount(manager, args[0])
	}

	accounts, _ := manager.List()
	switch len(accounts) {
	case 0:
		ui.PrintWarning("No stored accounts found")
		return nil
	case 1:
	default:
		names := make([]string, len(accounts))
		for i, a := range accounts {
			names[i] = a.Username
		}
		return fmt.Errorf("several accounts stored, name the one to remove: %s", strings.Join(names, ", "))
	}

	username := accounts[0].Username
	answer := prompt(bufio.NewReader(os.Stdin), fmt.Sprintf("Remove account '%s'? (y/N): ", username))
	if !strings.HasPrefix(strings.ToLower(answer), "y") {
		return nil
	}
	return removeAccount(manager, username)
}

func removeAccount(m *auth.Manager, username string) error {
	if err := m.Delete(username); err != nil {
		return err
	}
	ui.PrintSuccess("Account removed: " + username)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	manager, err := credentialManager()
	if err != nil {
		return err
	}
	accounts, err := manager.List()
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'igtags auth login' to add an account")
		return nil
	}

	ui.PrintHighlight("Stored Accounts\n")
	for i, a := range accounts {
		shown := auth.SanitizeAccount(a)
		fmt.Printf("%d. %s (password %s)\n", i+1, shown.Username, shown.Password)
		if !shown.LastModified.IsZero() {
			fmt.Printf("   saved %s\n", shown.LastModified.Format("2006-01-02 15:04"))
		}
	}
	return nil
}

// readPassword reads without echo on a terminal and falls back to a plain
// line otherwise.
func readPassword(in *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return string(pw), nil
		}
	}
	line, err := in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
