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
	"github.com/keygate/keygate/internal/store"
)

func newInjectorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "injector",
		Short: "Manage injectors",
		Long:  "Register and list the client applications that keys can be scoped to.",
	}

	cmd.AddCommand(newInjectorCreateCmd())
	cmd.AddCommand(newInjectorListCmd())
	cmd.AddCommand(newInjectorDeleteCmd())

	return cmd
}

// ---------- injector create ----------

func newInjectorCreateCmd() *cobra.Command {
	var redirectURL string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a new injector",
		Example: `  keygate injector create "Alpha Loader"
  keygate injector create "Alpha Loader" --redirect https://alpha.example.com/login`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInjectorCreate(args[0], redirectURL)
		},
	}

	cmd.Flags().StringVar(&redirectURL, "redirect", "", "Redirect URL shown to this injector's clients")

	return cmd
}

func runInjectorCreate(name, redirectURL string) error {
	st, err := openCLIStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	inj := &model.Injector{Name: name, Status: true}
	if redirectURL != "" {
		inj.RedirectURL = &redirectURL
	}

	if err := st.CreateInjector(context.Background(), inj); err != nil {
		return fmt.Errorf("create injector: %w", err)
	}

	fmt.Printf("Created injector %q (id %d)\n", name, inj.ID)
	return nil
}

// ---------- injector list ----------

func newInjectorListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all injectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInjectorList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runInjectorList(jsonOutput bool) error {
	st, err := openCLIStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	injectors, err := st.ListInjectors(context.Background())
	if err != nil {
		return fmt.Errorf("list injectors: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(injectors)
	}

	if len(injectors) == 0 {
		fmt.Println("No injectors. Use 'keygate injector create' to register one.")
		return nil
	}

	fmt.Printf("%-6s %-24s %-8s %-40s\n", "ID", "NAME", "ACTIVE", "REDIRECT")
	fmt.Printf("%-6s %-24s %-8s %-40s\n", "--", "----", "------", "--------")
	for _, inj := range injectors {
		active := "yes"
		if !inj.Status {
			active = "no"
		}
		redirect := "-"
		if inj.RedirectURL != nil {
			redirect = *inj.RedirectURL
		}
		fmt.Printf("%-6d %-24s %-8s %-40s\n", inj.ID, inj.Name, active, redirect)
	}

	return nil
}

// ---------- injector delete ----------

func newInjectorDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete an injector (its keys become unscoped)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInjectorDelete(args[0])
		},
	}
}

func runInjectorDelete(rawID string) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid injector ID %q", rawID)
	}

	st, err := openCLIStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.DeleteInjector(context.Background(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("injector %d not found", id)
		}
		return err
	}

	fmt.Printf("Deleted injector %d\n", id)
	return nil
}
