package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arnauranchal/epcalc-server/internal/identity"
)

var (
	keyOwner   string
	keyIsAdmin bool
	keyID      string
)

var adminKeyCmd = &cobra.Command{
	Use:   "admin-key",
	Short: "Create, list, or revoke API keys without going through the HTTP API",
	Long: `admin-key bootstraps the first admin key (POST /admin/keys itself
requires an admin identity, so something has to mint the first one
out-of-band) and otherwise manages keys from the command line.`,
}

var adminKeyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new API key",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := identity.LoadKeyStoreFile(keysFile)
		if err != nil {
			return err
		}
		id, rawKey, err := keys.Create(keyOwner, keyIsAdmin)
		if err != nil {
			return err
		}
		if err := keys.SaveFile(keysFile); err != nil {
			return err
		}
		fmt.Printf("id:      %s\n", id)
		fmt.Printf("key:     %s\n", rawKey)
		fmt.Printf("owner:   %s\n", keyOwner)
		fmt.Printf("isAdmin: %v\n", keyIsAdmin)
		fmt.Println("\nThe key above is shown once. Store it now.")
		return nil
	},
}

var adminKeyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every API key's public info",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := identity.LoadKeyStoreFile(keysFile)
		if err != nil {
			return err
		}
		for _, info := range keys.List() {
			status := "active"
			if info.RevokedAt != nil {
				status = "revoked"
			}
			fmt.Printf("%s  owner=%s  admin=%v  %s  created=%s\n", info.ID, info.Owner, info.IsAdmin, status, info.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		}
		return nil
	},
}

var adminKeyRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an API key by id",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := identity.LoadKeyStoreFile(keysFile)
		if err != nil {
			return err
		}
		if err := keys.Revoke(keyID); err != nil {
			return err
		}
		return keys.SaveFile(keysFile)
	},
}

func init() {
	adminKeyCmd.PersistentFlags().StringVar(&keysFile, "keys-file", "./epcalc-keys.json", "path to the API key store")

	adminKeyCreateCmd.Flags().StringVar(&keyOwner, "owner", "", "human-readable owner label (required)")
	adminKeyCreateCmd.Flags().BoolVar(&keyIsAdmin, "admin", false, "mint an admin key")
	_ = adminKeyCreateCmd.MarkFlagRequired("owner")

	adminKeyRevokeCmd.Flags().StringVar(&keyID, "id", "", "key id to revoke (required)")
	_ = adminKeyRevokeCmd.MarkFlagRequired("id")

	adminKeyCmd.AddCommand(adminKeyCreateCmd, adminKeyListCmd, adminKeyRevokeCmd)
}
