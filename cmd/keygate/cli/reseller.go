package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

func newResellerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reseller",
		Short: "Manage reseller accounts",
		Long:  "Create reseller accounts and adjust their credit balances.",
	}

	cmd.AddCommand(newResellerCreateCmd())
	cmd.AddCommand(newResellerListCmd())
	cmd.AddCommand(newResellerCreditsCmd())

	return cmd
}

// ---------- reseller create ----------

func newResellerCreateCmd() *cobra.Command {
	var (
		username string
		password string
		credits  int64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new reseller account",
		Example: `  keygate reseller create --username shop1 --credits 100
  keygate reseller create --username shop1  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResellerCreate(username, password, credits)
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Reseller username (required)")
	cmd.Flags().StringVar(&password, "password", "", "Reseller password (prompted if omitted)")
	cmd.Flags().Int64Var(&credits, "credits", 0, "Initial credit balance")
	cmd.MarkFlagRequired("username")

	return cmd
}

func runResellerCreate(username, password string, credits int64) error {
	if credits < 0 {
		return fmt.Errorf("initial credits must not be negative")
	}

	if password == "" {
		var err error
		password, err = promptPassword()
		if err != nil {
			return err
		}
	}

	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	hash, err := service.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	st, err := openCLIStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	res := &model.Reseller{Username: username, PasswordHash: hash, Credits: credits}
	if err := st.CreateReseller(context.Background(), res); err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			return fmt.Errorf("reseller %q already exists", username)
		}
		return fmt.Errorf("create reseller: %w", err)
	}

	fmt.Printf("Created reseller %q (id %d, %d credits)\n", username, res.ID, res.Credits)
	return nil
}

// ---------- reseller list ----------

func newResellerListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all reseller accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResellerList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runResellerList(jsonOutput bool) error {
	st, err := openCLIStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	resellers, err := st.ListResellers(context.Background())
	if err != nil {
		return fmt.Errorf("list resellers: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resellers)
	}

	if len(resellers) == 0 {
		fmt.Println("No resellers. Use 'keygate reseller create' to create one.")
		return nil
	}

	fmt.Printf("%-6s %-24s %-10s %-20s\n", "ID", "USERNAME", "CREDITS", "LAST LOGIN")
	fmt.Printf("%-6s %-24s %-10s %-20s\n", "--", "--------", "-------", "----------")
	for _, r := range resellers {
		lastLogin := "never"
		if r.LastLogin != nil {
			lastLogin = r.LastLogin.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-6d %-24s %-10d %-20s\n", r.ID, r.Username, r.Credits, lastLogin)
	}

	return nil
}

// ---------- reseller credits ----------

func newResellerCreditsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits <id> <delta>",
		Short: "Adjust a reseller's credit balance",
		Long:  "Add credits with a positive delta or subtract with a negative one. Subtracting below zero is refused.",
		Example: `  keygate reseller credits 1 50
  keygate reseller credits 1 -10`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResellerCredits(args[0], args[1])
		},
	}

	return cmd
}

func runResellerCredits(rawID, rawDelta string) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid reseller ID %q", rawID)
	}
	delta, err := strconv.ParseInt(rawDelta, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid credit delta %q", rawDelta)
	}
	if delta == 0 {
		return fmt.Errorf("credit delta must not be zero")
	}

	st, err := openCLIStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	if delta > 0 {
		err = st.AddCredits(ctx, id, delta)
	} else {
		err = st.DebitCredits(ctx, id, -delta)
	}
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("reseller %d not found", id)
		case errors.Is(err, store.ErrInsufficientCredits):
			return fmt.Errorf("reseller %d does not have %d credits to remove", id, -delta)
		}
		return err
	}

	res, err := st.GetReseller(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("Reseller %q now has %d credits\n", res.Username, res.Credits)
	return nil
}
