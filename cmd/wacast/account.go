package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"wacast/internal/config"
	"wacast/internal/db"
	"wacast/internal/models"
	"wacast/internal/store"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Account management commands",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new account",
	RunE:  runAccountCreate,
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	RunE:  runAccountList,
}

var accountLimitCmd = &cobra.Command{
	Use:   "set-limit [account-id] [limit]",
	Short: "Set an account's daily message limit",
	Args:  cobra.ExactArgs(2),
	RunE:  runAccountLimit,
}

var accountPauseCmd = &cobra.Command{
	Use:   "pause [account-id]",
	Short: "Pause sending for an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountPause,
}

var accountUnpauseCmd = &cobra.Command{
	Use:   "unpause [account-id]",
	Short: "Resume sending for an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountUnpause,
}

var accountCredentialsCmd = &cobra.Command{
	Use:   "credentials [account-id]",
	Short: "Set an account's gateway credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountCredentials,
}

var accountKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "API key management commands",
}

var accountKeyCreateCmd = &cobra.Command{
	Use:   "create [account-id]",
	Short: "Issue an API key for an account",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountKeyCreate,
}

var accountKeyListCmd = &cobra.Command{
	Use:   "list [account-id]",
	Short: "List an account's API keys",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountKeyList,
}

var accountKeyRevokeCmd = &cobra.Command{
	Use:   "revoke [key-id]",
	Short: "Revoke an API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountKeyRevoke,
}

var (
	accountEmail     string
	accountName      string
	accountRole      string
	accountLimit     int
	gatewayToken     string
	gatewayVendorUID string
	apiKeyName       string
)

func init() {
	accountCreateCmd.Flags().StringVar(&accountEmail, "email", "", "Account email")
	accountCreateCmd.Flags().StringVar(&accountName, "name", "", "Account name")
	accountCreateCmd.Flags().StringVar(&accountRole, "role", "user", "Account role (user or admin)")
	accountCreateCmd.Flags().IntVar(&accountLimit, "limit", 0, "Daily message limit (default 1000)")
	accountCreateCmd.MarkFlagRequired("email")

	accountCredentialsCmd.Flags().StringVar(&gatewayToken, "token", "", "Gateway API token")
	accountCredentialsCmd.Flags().StringVar(&gatewayVendorUID, "vendor-uid", "", "Gateway vendor UID")
	accountCredentialsCmd.MarkFlagRequired("token")
	accountCredentialsCmd.MarkFlagRequired("vendor-uid")

	accountKeyCreateCmd.Flags().StringVar(&apiKeyName, "name", "default", "Key name")
	accountKeyCmd.AddCommand(accountKeyCreateCmd, accountKeyListCmd, accountKeyRevokeCmd)

	accountCmd.AddCommand(
		accountCreateCmd,
		accountListCmd,
		accountLimitCmd,
		accountPauseCmd,
		accountUnpauseCmd,
		accountCredentialsCmd,
		accountKeyCmd,
	)
}

func openAccountStore() (*store.AccountStore, *store.APIKeyStore, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, err
	}

	database, err := db.New(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, nil, nil, err
	}

	return store.NewAccountStore(database.DB), store.NewAPIKeyStore(database.DB),
		func() { database.Close() }, nil
}

func runAccountCreate(cmd *cobra.Command, args []string) error {
	accounts, _, closeDB, err := openAccountStore()
	if err != nil {
		return err
	}
	defer closeDB()

	role := models.Role(accountRole)
	if role != models.RoleAdmin && role != models.RoleUser {
		return fmt.Errorf("invalid role: %s", accountRole)
	}

	if existing, err := accounts.GetByEmail(accountEmail); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("account with email %s already exists (id %s)", accountEmail, existing.ID)
	}

	account := &models.Account{
		Email:      accountEmail,
		Name:       accountName,
		Role:       role,
		DailyLimit: accountLimit,
	}
	if err := accounts.Create(account); err != nil {
		return err
	}

	fmt.Printf("Account created\n")
	fmt.Printf("  ID:    %s\n", account.ID)
	fmt.Printf("  Email: %s\n", account.Email)
	fmt.Printf("  Role:  %s\n", account.Role)
	fmt.Printf("  Limit: %d messages/day\n", account.DailyLimit)
	return nil
}

func runAccountList(cmd *cobra.Command, args []string) error {
	accounts, _, closeDB, err := openAccountStore()
	if err != nil {
		return err
	}
	defer closeDB()

	list, err := accounts.List()
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No accounts")
		return nil
	}

	for _, a := range list {
		state := "active"
		if a.IsPaused {
			state = "paused"
		}
		gateway := "no credentials"
		if a.Credentials.Configured() {
			gateway = "configured"
		}
		fmt.Printf("%s  %-30s %-5s limit=%-6d %s, gateway %s\n",
			a.ID, a.Email, a.Role, a.DailyLimit, state, gateway)
	}
	return nil
}

func runAccountLimit(cmd *cobra.Command, args []string) error {
	limit, err := strconv.Atoi(args[1])
	if err != nil || limit <= 0 {
		return fmt.Errorf("limit must be a positive integer")
	}

	accounts, _, closeDB, err := openAccountStore()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := accounts.SetDailyLimit(args[0], limit); err != nil {
		return err
	}
	fmt.Printf("Daily limit for %s set to %d\n", args[0], limit)
	return nil
}

func runAccountPause(cmd *cobra.Command, args []string) error {
	return setAccountPaused(args[0], true)
}

func runAccountUnpause(cmd *cobra.Command, args []string) error {
	return setAccountPaused(args[0], false)
}

func setAccountPaused(id string, paused bool) error {
	accounts, _, closeDB, err := openAccountStore()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := accounts.SetPaused(id, paused); err != nil {
		return err
	}
	if paused {
		fmt.Printf("Account %s paused\n", id)
	} else {
		fmt.Printf("Account %s unpaused\n", id)
	}
	return nil
}

func runAccountCredentials(cmd *cobra.Command, args []string) error {
	accounts, _, closeDB, err := openAccountStore()
	if err != nil {
		return err
	}
	defer closeDB()

	creds := models.GatewayCredentials{Token: gatewayToken, VendorUID: gatewayVendorUID}
	if err := accounts.UpdateCredentials(args[0], creds); err != nil {
		return err
	}
	fmt.Printf("Gateway credentials for %s updated\n", args[0])
	return nil
}

func runAccountKeyCreate(cmd *cobra.Command, args []string) error {
	_, apikeys, closeDB, err := openAccountStore()
	if err != nil {
		return err
	}
	defer closeDB()

	result, err := apikeys.Create(args[0], apiKeyName)
	if err != nil {
		return err
	}

	fmt.Printf("API key created for %s\n", args[0])
	fmt.Printf("  %s\n", result.Key)
	fmt.Println("Store it now; only the hash is kept.")
	return nil
}

func runAccountKeyList(cmd *cobra.Command, args []string) error {
	_, apikeys, closeDB, err := openAccountStore()
	if err != nil {
		return err
	}
	defer closeDB()

	keys, err := apikeys.ListForAccount(args[0])
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("No API keys")
		return nil
	}

	for _, k := range keys {
		lastUsed := "never"
		if k.LastUsed != nil {
			lastUsed = k.LastUsed.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%s  %-20s %s...  created %s, last used %s\n",
			k.ID, k.Name, k.KeyPrefix, k.CreatedAt.Format("2006-01-02"), lastUsed)
	}
	return nil
}

func runAccountKeyRevoke(cmd *cobra.Command, args []string) error {
	_, apikeys, closeDB, err := openAccountStore()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := apikeys.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("API key %s revoked\n", args[0])
	return nil
}
