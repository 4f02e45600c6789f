package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
	"github.com/keygate/keygate/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage login keys",
		Long:  "Create, list, block, and delete the login keys that client apps authenticate with.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyBlockCmd())
	cmd.AddCommand(newKeyUnblockCmd())
	cmd.AddCommand(newKeyDeleteCmd())

	return cmd
}

// quietLifecycle builds a key lifecycle service that does not log to the
// terminal. CLI output is the command's own.
func quietLifecycle(st *store.Store) *service.Lifecycle {
	return service.NewLifecycle(st, slog.New(slog.NewTextHandler(io.Discard, nil)), "")
}

// parseExpiry accepts a duration from now ("720h"), an RFC 3339 timestamp,
// or a plain date.
func parseExpiry(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		t := time.Now().Add(d).UTC()
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, nil
	}
	return nil, fmt.Errorf("invalid expiry %q (use a duration like 720h, RFC 3339, or YYYY-MM-DD)", raw)
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		rawKey     string
		generate   bool
		injectorID int64
		expires    string
		maxDevices int64
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new login key",
		Long:  "Create a login key. Without --key a random one is generated and printed.",
		Example: `  keygate key create --generate
  keygate key create --injector 1 --expires 720h --max-devices 2
  keygate key create --key GAME-PASS-2024-AAAA`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if generate && rawKey != "" {
				return fmt.Errorf("--generate and --key are mutually exclusive")
			}
			return runKeyCreate(rawKey, injectorID, expires, maxDevices)
		},
	}

	cmd.Flags().StringVar(&rawKey, "key", "", "Exact key string (generated if omitted)")
	cmd.Flags().BoolVar(&generate, "generate", false, "Generate a random key string")
	cmd.Flags().Int64Var(&injectorID, "injector", 0, "Injector ID to scope the key to")
	cmd.Flags().StringVar(&expires, "expires", "", "Expiry as duration from now, RFC 3339, or YYYY-MM-DD")
	cmd.Flags().Int64Var(&maxDevices, "max-devices", 0, "Device limit (0 = unlimited)")

	return cmd
}

func runKeyCreate(rawKey string, injectorID int64, expires string, maxDevices int64) error {
	expiresAt, err := parseExpiry(expires)
	if err != nil {
		return err
	}

	req := model.KeyRequest{Key: rawKey, ExpiresAt: expiresAt}
	if injectorID > 0 {
		req.InjectorID = &injectorID
	}
	if maxDevices > 0 {
		req.MaxDevices = &maxDevices
	}

	st, err := openCLIStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	key, err := quietLifecycle(st).AdminCreateKey(context.Background(), req)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return fmt.Errorf("key %q already exists", rawKey)
		}
		return fmt.Errorf("create key: %w", err)
	}

	fmt.Println("Key created:")
	fmt.Println()
	fmt.Printf("  Key: %s\n", key.Key)
	fmt.Printf("  ID:  %d\n", key.ID)
	if key.InjectorID != nil {
		fmt.Printf("  Injector:    %d\n", *key.InjectorID)
	}
	if key.ExpiresAt != nil {
		fmt.Printf("  Expires:     %s\n", key.ExpiresAt.Format(time.RFC3339))
	}
	if key.MaxDevices != nil {
		fmt.Printf("  Max devices: %d\n", *key.MaxDevices)
	}
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		jsonOutput bool
		injectorID int64
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List login keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(jsonOutput, injectorID)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().Int64Var(&injectorID, "injector", 0, "Only keys scoped to this injector")

	return cmd
}

func runKeyList(jsonOutput bool, injectorID int64) error {
	st, err := openCLIStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	var keys []model.LoginKey
	if injectorID > 0 {
		keys, err = st.ListKeysByInjector(ctx, injectorID)
	} else {
		keys, err = st.ListKeys(ctx)
	}
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	if len(keys) == 0 {
		fmt.Println("No keys. Use 'keygate key create' to create one.")
		return nil
	}

	fmt.Printf("%-6s %-24s %-10s %-9s %-8s %-20s\n", "ID", "KEY", "INJECTOR", "DEVICES", "BLOCKED", "EXPIRES")
	fmt.Printf("%-6s %-24s %-10s %-9s %-8s %-20s\n", "--", "---", "--------", "-------", "-------", "-------")
	for _, k := range keys {
		injector := "-"
		if k.InjectorID != nil {
			injector = strconv.FormatInt(*k.InjectorID, 10)
		}
		devices := strconv.FormatInt(k.DeviceCount, 10)
		if k.MaxDevices != nil {
			devices = fmt.Sprintf("%d/%d", k.DeviceCount, *k.MaxDevices)
		}
		blocked := "no"
		if k.Blocked {
			blocked = "yes"
		}
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-6d %-24s %-10s %-9s %-8s %-20s\n", k.ID, k.Key, injector, devices, blocked, expires)
	}

	return nil
}

// ---------- key block / unblock ----------

func newKeyBlockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "block <id>",
		Short: "Block a key",
		Long:  "Block a key so every validation attempt is rejected until it is unblocked.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeySetBlocked(args[0], true)
		},
	}
}

func newKeyUnblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <id>",
		Short: "Unblock a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeySetBlocked(args[0], false)
		},
	}
}

func runKeySetBlocked(rawID string, blocked bool) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid key ID %q", rawID)
	}

	st, err := openCLIStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.SetKeyBlocked(context.Background(), id, blocked); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("key %d not found", id)
		}
		return err
	}

	if blocked {
		fmt.Printf("Blocked key %d\n", id)
	} else {
		fmt.Printf("Unblocked key %d\n", id)
	}
	return nil
}

// ---------- key delete ----------

func newKeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"revoke", "rm"},
		Short:   "Delete a key and its device bindings",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyDelete(args[0])
		},
	}
}

func runKeyDelete(rawID string) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid key ID %q", rawID)
	}

	st, err := openCLIStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := quietLifecycle(st).DeleteKey(context.Background(), id, nil); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("key %d not found", id)
		}
		return err
	}

	fmt.Printf("Deleted key %d\n", id)
	return nil
}
