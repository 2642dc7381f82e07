// Package cmd contains wallet app
package cmd

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	accountName string
	accountPath string
	url         string
)

const (
	keyExtenstion = ".ecdsa"
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "private.ecdsa", "Path to the private key.")
	rootCmd.PersistentFlags().StringVarP(&accountPath, "account-path", "p", "zblock/accounts/", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}

var rootCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Your simple wallet",
}

// Execute runs the wallet command line.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func getPrivateKeyPath() string {
	return keyPath(accountName)
}

func keyPath(name string) string {
	if !strings.HasSuffix(name, keyExtenstion) {
		name += keyExtenstion
	}

	return filepath.Join(accountPath, name)
}

// resolveAccount accepts an account id or the name of a key file in the
// account path.
func resolveAccount(nameOrID string) (database.AccountID, error) {
	if accountID, err := database.ToAccountID(nameOrID); err == nil {
		return accountID, nil
	}

	privateKey, err := crypto.LoadECDSA(keyPath(nameOrID))
	if err != nil {
		return "", fmt.Errorf("unknown account %q: %w", nameOrID, err)
	}

	return database.PublicKeyToAccountID(privateKey.PublicKey), nil
}

func loadPrivateKey() (*ecdsa.PrivateKey, error) {
	return crypto.LoadECDSA(getPrivateKeyPath())
}

// get performs a GET against the node and decodes the JSON response.
func get(path string, v any) error {
	resp, err := http.Get(url + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var er struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&er)
		return fmt.Errorf("%s: %s", resp.Status, er.Error)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}
